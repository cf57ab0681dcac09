// Package main provides the Fernando-X operator CLI: schema migration, CSV
// imports, training seeds, refresh runs and ad hoc queries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/app"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/config"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

const version = "0.3.0"

// cli holds global flags and the state built before each command runs.
type cli struct {
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool

	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "fernando-cli",
		Short: "Fernando-X operator CLI",
		Long: `Fernando-X CLI manages the Houston real-estate intelligence store.

Use this tool to:
- Apply the database schema
- Import DataProcess3 and HAR MLS CSV exports
- Seed training Q&A pairs and prune old memories
- Run market-data refresh sources
- Query the knowledge base, generate reports and analyze photos

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.ui != nil {
				c.ui.Close()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path (default: env vars only)")
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.newMigrateCmd(),
		c.newImportCmd(),
		c.newSeedCmd(),
		c.newMemoryCmd(),
		c.newRefreshCmd(),
		c.newSearchCmd(),
		c.newAskCmd(),
		c.newReportCmd(),
		c.newVisionCmd(),
		c.newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	// Logs go to stderr so command output stays clean.
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	format := "console"
	if c.outputJSON {
		format = "json"
	}
	c.logger = observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      format,
		Output:      c.errOut,
		ServiceName: "fernando-cli",
	})
	c.ui = NewUI(c.out, c.errOut, c.outputJSON, c.noColor)
	return nil
}

// openApp wires every service from the loaded configuration.
func (c *cli) openApp(opts app.Options) (*app.App, error) {
	a, err := app.New(c.cfg, c.logger, opts)
	if err != nil {
		return nil, fmt.Errorf("open app: %w", err)
	}
	return a, nil
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newMigrateCmd creates the migrate subcommand.
func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and seed refresh sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.Migrate(ctx)
			if err != nil {
				return err
			}
			if c.outputJSON {
				return c.ui.JSON(status)
			}
			if len(status.Ran) == 0 {
				c.ui.Success("Schema up to date on %s (%d migrations)", c.cfg.Database.Driver, status.Total)
				return nil
			}
			for _, name := range status.Ran {
				c.ui.Step("Applied %s", name)
			}
			c.ui.Success("Applied %d of %d migrations on %s", len(status.Ran), status.Total, c.cfg.Database.Driver)
			return nil
		},
	}
}

// newVersionCmd creates the version subcommand.
func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.outputJSON {
				return c.ui.JSON(map[string]string{
					"version": version,
					"go":      runtime.Version(),
				})
			}
			c.ui.Text("fernando-cli v" + version)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
