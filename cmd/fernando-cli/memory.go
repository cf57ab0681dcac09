package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/app"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/memory"
)

// newSeedCmd creates the seed command group.
func (c *cli) newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed reference data",
	}

	var file string
	training := &cobra.Command{
		Use:   "training",
		Short: "Store training Q&A pairs as memories",
		Long: `Training seeds every Q&A pair as a training memory and each question
variation as a lower-importance memory. Without --file the built-in
Houston training set is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			if file == "" {
				file = c.cfg.Memory.TrainingDataSet
			}
			pairs, err := memory.LoadTrainingPairs(file)
			if err != nil {
				return err
			}

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			bar := c.ui.Counter(len(pairs), "Seeding training data")
			stored, err := a.Memory.SeedTraining(ctx, pairs, func(done, total int) {
				if bar != nil {
					_ = bar.Set(done)
				}
			})
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.ui.JSON(map[string]int{"pairs": len(pairs), "stored": stored})
			}
			if stored < len(pairs) {
				c.ui.Warning("Stored %d of %d training pairs", stored, len(pairs))
				return nil
			}
			c.ui.Success("Stored %d training pairs", stored)
			return nil
		},
	}
	training.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON training file")

	cmd.AddCommand(training)
	return cmd
}

// newMemoryCmd creates the memory command group.
func (c *cli) newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and prune stored memories",
	}

	var days int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete low-importance memories older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = c.cfg.Memory.RetentionDays
			}
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.Memory.CleanupOldMemories(ctx, days)
			if err != nil {
				return err
			}
			if c.outputJSON {
				return c.ui.JSON(map[string]int64{"deleted": deleted, "days": int64(days)})
			}
			c.ui.Success("Deleted %d memories older than %d days", deleted, days)
			return nil
		},
	}
	cleanup.Flags().IntVar(&days, "days", 0, "retention window in days (default: config)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count stored memories by type",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.Memory.Counts(ctx)
			if err != nil {
				return err
			}
			if c.outputJSON {
				return c.ui.JSON(counts)
			}
			rows := countRows(counts)
			if len(rows) == 0 {
				c.ui.Info("No memories stored")
				return nil
			}
			c.ui.Table([]string{"Type", "Count"}, rows)
			return nil
		},
	}

	cmd.AddCommand(cleanup, stats)
	return cmd
}

// countRows renders counts sorted by type.
func countRows(counts map[string]int) [][]string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	slices.Sort(types)

	rows := make([][]string, 0, len(types))
	total := 0
	for _, t := range types {
		rows = append(rows, []string{t, strconv.Itoa(counts[t])})
		total += counts[t]
	}
	if len(rows) > 1 {
		rows = append(rows, []string{"total", fmt.Sprint(total)})
	}
	return rows
}
