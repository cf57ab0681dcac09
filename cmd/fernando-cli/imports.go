package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/app"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/ingest"
)

const maxErrorsShown = 5

// newImportCmd creates the import command group.
func (c *cli) newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import CSV exports into the database",
	}
	cmd.AddCommand(c.newImportDataProcessCmd(), c.newImportHarCmd(), c.newImportStatusCmd())
	return cmd
}

func (c *cli) newImportDataProcessCmd() *cobra.Command {
	var (
		category string
		dir      string
		operator string
	)

	cmd := &cobra.Command{
		Use:   "dataprocess3",
		Short: "Import the DataProcess3 category folders",
		Long: `Import walks each DataProcess3 category folder and stores every CSV row.
Categories run concurrently; use --category to import a single one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			if dir != "" {
				c.cfg.Import.DataProcess3Dir = dir
			}
			bars := newImportBars(c.ui)
			a, err := c.openApp(app.Options{ImportProgress: bars.Observe})
			if err != nil {
				return err
			}
			defer a.Close()

			c.ui.Step("Importing from %s", c.cfg.Import.DataProcess3Dir)
			start := time.Now()

			var results []*ingest.ImportResult
			if category != "" {
				res, err := a.DataImporter.ImportCategory(ctx, category)
				if err != nil {
					return fmt.Errorf("%w (known: %s)", err, strings.Join(a.DataImporter.Categories(), ", "))
				}
				results = []*ingest.ImportResult{res}
			} else {
				results, err = a.DataImporter.ImportAll(ctx)
				if err != nil {
					bars.Finish()
					return err
				}
			}
			bars.Finish()
			c.ui.Close()

			op := operatorName(operator)
			for _, r := range results {
				if r == nil {
					continue
				}
				_ = a.Audit.LogImport(ctx, r.Category, op, r.RecordsImported, r.Failed)
			}

			if c.outputJSON {
				return c.ui.JSON(results)
			}
			rows := make([][]string, 0, len(results))
			var imported, failed int
			for _, r := range results {
				if r == nil {
					continue
				}
				imported += r.RecordsImported
				failed += r.Failed
				rows = append(rows, []string{
					r.Category,
					strconv.Itoa(bars.Files(r.Category)),
					strconv.Itoa(r.RecordsImported),
					strconv.Itoa(r.Failed),
					FormatDuration(r.Duration),
				})
			}
			c.ui.Table([]string{"Category", "Files", "Imported", "Failed", "Duration"}, rows)
			c.reportImport(imported, failed, time.Since(start), results)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "import a single category")
	cmd.Flags().StringVar(&dir, "dir", "", "DataProcess3 base directory (overrides config)")
	cmd.Flags().StringVar(&operator, "operator", "", "operator recorded in the audit log (default: $USER)")
	return cmd
}

func (c *cli) newImportHarCmd() *cobra.Command {
	var (
		month int
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "har",
		Short: "Import HAR MLS monthly reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if month < 0 || month > 12 {
				return fmt.Errorf("--month must be between 1 and 12, got %d", month)
			}
			ctx, cancel := commandContext()
			defer cancel()

			if dir != "" {
				c.cfg.Import.HarMlsDir = dir
			}
			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			var results []*ingest.MonthResult
			if month > 0 {
				stop := c.ui.Spinner("Importing " + ingest.MonthName(month))
				results = []*ingest.MonthResult{a.HarImporter.ImportMonth(ctx, month)}
				stop()
			} else {
				bar := c.ui.ProgressBar("HAR MLS", int64(len(a.HarImporter.Mappings())))
				stop := c.ui.Spinner("Importing HAR MLS reports")
				results, err = a.HarImporter.ImportAll(ctx)
				stop()
				if bar != nil {
					bar.SetCurrent(int64(len(results)))
					if !bar.Completed() {
						bar.Abort(false)
					}
				}
				if err != nil {
					return err
				}
			}
			c.ui.Close()

			if c.outputJSON {
				return c.ui.JSON(results)
			}
			rows := make([][]string, 0, len(results))
			var imported, failed int
			for _, r := range results {
				imported += r.RecordsImported
				failed += r.Failed
				rows = append(rows, []string{
					r.Key,
					r.ReportType,
					strconv.Itoa(r.RecordsImported),
					strconv.Itoa(r.Failed),
				})
				for _, e := range r.Errors {
					c.ui.Warning("%s: %s", r.Key, e)
				}
			}
			c.ui.Table([]string{"Report", "Type", "Imported", "Failed"}, rows)
			if failed > 0 || imported == 0 {
				c.ui.Warning("Imported %d records, %d failed", imported, failed)
				return nil
			}
			c.ui.Success("Imported %d records", imported)
			return nil
		},
	}

	cmd.Flags().IntVar(&month, "month", 0, "import a single month (1-12)")
	cmd.Flags().StringVar(&dir, "dir", "", "HAR MLS base directory (overrides config)")
	return cmd
}

func (c *cli) newImportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show imported HAR MLS reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.HarImporter.Status(ctx)
			if err != nil {
				return err
			}
			if c.outputJSON {
				return c.ui.JSON(status)
			}
			if len(status) == 0 {
				c.ui.Info("No HAR MLS reports imported yet")
				return nil
			}
			rows := make([][]string, 0, len(status))
			for _, s := range status {
				rows = append(rows, []string{
					s.Month,
					s.Type,
					strconv.Itoa(s.TotalSales),
					fmt.Sprintf("$%.0f", s.AvgPrice),
					strconv.Itoa(s.NeighborhoodCount),
				})
			}
			c.ui.Table([]string{"Month", "Type", "Sales", "Avg Price", "Neighborhoods"}, rows)
			return nil
		},
	}
}

func (c *cli) reportImport(imported, failed int, took time.Duration, results []*ingest.ImportResult) {
	for _, r := range results {
		if r == nil {
			continue
		}
		for i, e := range r.Errors {
			if i == maxErrorsShown {
				c.ui.Warning("%s: %d more errors", r.Category, len(r.Errors)-i)
				break
			}
			c.ui.Warning("%s: %s", r.Category, e)
		}
	}
	if failed > 0 {
		c.ui.Warning("Imported %d records in %s, %d failed", imported, FormatDuration(took), failed)
		return
	}
	c.ui.Success("Imported %d records in %s", imported, FormatDuration(took))
}

func operatorName(flag string) string {
	if flag != "" {
		return flag
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
