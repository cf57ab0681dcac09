package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/app"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/refresh"
)

// newRefreshCmd creates the refresh command group.
func (c *cli) newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run and inspect market-data refresh sources",
	}
	cmd.AddCommand(c.newRefreshRunCmd(), c.newRefreshSourcesCmd(), c.newRefreshJobsCmd())
	return cmd
}

func (c *cli) newRefreshRunCmd() *cobra.Command {
	var (
		force    bool
		source   string
		operator string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Refresh every due source, or a single source",
		Long: `Run refreshes every enabled source that is due and then checks HAR MLS and
market metrics for significant changes. --force ignores due dates;
--source runs one source regardless of schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			var results []refresh.Result
			if source != "" {
				stop := c.ui.Spinner("Refreshing " + source)
				res, err := a.Refresh.RefreshSource(ctx, source)
				stop()
				if err != nil {
					return err
				}
				results = []refresh.Result{*res}
			} else {
				stop := c.ui.Spinner("Refreshing due sources")
				results, err = a.Refresh.RefreshAll(ctx, force)
				stop()
				if err != nil {
					return err
				}
			}

			op := operatorName(operator)
			for _, r := range results {
				_ = a.Audit.LogRefresh(ctx, r.Source, op, r.Success, r.RecordsUpdated, r.Errors)
			}

			if c.outputJSON {
				return c.ui.JSON(results)
			}
			c.printResults(results)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "refresh sources even when not due")
	cmd.Flags().StringVar(&source, "source", "", "refresh a single source")
	cmd.Flags().StringVar(&operator, "operator", "", "operator recorded in the audit log (default: $USER)")
	return cmd
}

func (c *cli) printResults(results []refresh.Result) {
	if len(results) == 0 {
		c.ui.Info("No sources were due")
		return
	}
	rows := make([][]string, 0, len(results))
	failed := 0
	for _, r := range results {
		status := "ok"
		if !r.Success {
			status = "failed"
			failed++
		}
		rows = append(rows, []string{r.Source, status, strconv.Itoa(r.RecordsUpdated), FormatDuration(r.Duration)})
	}
	c.ui.Table([]string{"Source", "Status", "Records", "Duration"}, rows)
	for _, r := range results {
		for _, e := range r.Errors {
			c.ui.Warning("%s: %s", r.Source, e)
		}
	}
	if failed > 0 {
		c.ui.Warning("%d of %d sources failed", failed, len(results))
		return
	}
	c.ui.Success("Refreshed %d sources", len(results))
}

func (c *cli) newRefreshSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List refresh sources and when they are next due",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.Refresh.Sources(ctx)
			if err != nil {
				return err
			}
			if c.outputJSON {
				return c.ui.JSON(sources)
			}
			rows := make([][]string, 0, len(sources))
			for _, s := range sources {
				rows = append(rows, []string{
					s.Source,
					string(s.Frequency),
					strconv.FormatBool(s.Enabled),
					formatTime(s.LastRun),
					deref(s.LastStatus),
					formatTime(s.NextDue),
				})
			}
			c.ui.Table([]string{"Source", "Frequency", "Enabled", "Last Run", "Status", "Next Due"}, rows)
			return nil
		},
	}
}

func (c *cli) newRefreshJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List scheduled refresh jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			jobs := a.Scheduler.JobStatus()
			if c.outputJSON {
				return c.ui.JSON(jobs)
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []string{j.Name, j.Schedule, strconv.FormatBool(j.Enabled), formatTime(j.NextRun)})
			}
			c.ui.Table([]string{"Job", "Schedule", "Enabled", "Next Run"}, rows)
			c.ui.Info("Timezone %s", c.cfg.Location())
			return nil
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return strings.TrimSpace(*s)
}
