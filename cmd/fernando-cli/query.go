package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/app"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/report"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/search"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/vision"
)

// newSearchCmd creates the search subcommand.
func (c *cli) newSearchCmd() *cobra.Command {
	var (
		mode    string
		limit   int
		types   []string
		context bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the Houston knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := search.ParseMode(mode)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			opts := search.Options{Limit: limit, Types: types, IncludeContext: context}

			var results []search.Result
			switch m {
			case search.ModeKeyword:
				results = a.Search.KeywordSearch(query, limit)
			case search.ModeHybrid:
				results, err = a.Search.HybridSearch(ctx, query, opts)
			default:
				results, err = a.Search.Search(ctx, query, opts)
			}
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.ui.JSON(results)
			}
			if len(results) == 0 {
				c.ui.Info("No results for %q", query)
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{fmt.Sprintf("%.3f", r.Score), string(r.Node.Type), r.Node.ID, r.Node.Title})
			}
			c.ui.Table([]string{"Score", "Type", "ID", "Title"}, rows)
			if context {
				for _, r := range results {
					if r.Context != "" {
						c.ui.Section(r.Node.Title)
						c.ui.Text(r.Context)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "semantic", "semantic, keyword or hybrid")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default: config)")
	cmd.Flags().StringSliceVar(&types, "type", nil, "restrict to node types")
	cmd.Flags().BoolVar(&context, "context", false, "include surrounding text")
	return cmd
}

// newAskCmd creates the ask subcommand.
func (c *cli) newAskCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask Fernando a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.Conversations.ProcessMessage(ctx, session, operatorName(""), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if c.outputJSON {
				return c.ui.JSON(reply)
			}
			c.ui.Text(reply.Response)
			c.ui.Newline()
			c.ui.KeyValue("Intent", fmt.Sprintf("%s (%.0f%%)", reply.Intent, reply.Confidence*100))
			if len(reply.Suggestions) > 0 {
				c.ui.KeyValue("Try", strings.Join(reply.Suggestions, " | "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "conversation session ID")
	return cmd
}

// newReportCmd creates the report subcommand.
func (c *cli) newReportCmd() *cobra.Command {
	var (
		format       string
		style        string
		sections     []string
		neighborhood string
		output       string
	)

	cmd := &cobra.Command{
		Use:   "report <type> <topic>",
		Short: "Generate an investment or market report",
		Long: `Report generates one of the report templates for a topic:
investment-memo, market-analysis, feasibility-study, portfolio-review or
development-proposal.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			req := report.Request{
				Config: report.Config{
					Type:     report.Type(args[0]),
					Format:   report.Format(format),
					Style:    report.Style(style),
					Sections: sections,
				},
				Topic: strings.Join(args[1:], " "),
			}
			if neighborhood != "" {
				req.Context.Property = &report.Property{Neighborhood: neighborhood}
			}

			rep, err := a.Reports.Generate(ctx, req)
			if err != nil {
				return err
			}
			if c.outputJSON {
				return c.ui.JSON(rep)
			}

			rendered := report.Render(rep, req.Config.Format)
			if output != "" {
				if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				c.ui.Success("Wrote %s (%d words, %d min read)", output, rep.Metadata.WordCount, rep.Metadata.ReadingTime)
				return nil
			}
			c.ui.Text(rendered)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "markdown, html or text")
	cmd.Flags().StringVar(&style, "style", "", "executive, detailed or technical")
	cmd.Flags().StringSliceVar(&sections, "section", nil, "limit to named sections")
	cmd.Flags().StringVar(&neighborhood, "neighborhood", "", "subject property neighborhood")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file")
	return cmd
}

// newVisionCmd creates the vision command group.
func (c *cli) newVisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vision",
		Short: "Analyze property photos",
	}

	var (
		propertyType string
		price        float64
	)
	analyze := &cobra.Command{
		Use:   "analyze <url>...",
		Short: "Analyze one or more property photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := c.openApp(app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			pc := vision.PhotoContext{PropertyType: propertyType, AskingPrice: price}
			analyses := make([]*vision.PhotoAnalysis, 0, len(args))
			for _, url := range args {
				stop := c.ui.Spinner("Analyzing " + url)
				pa, err := a.Vision.AnalyzePhoto(ctx, url, pc)
				stop()
				if err != nil {
					return fmt.Errorf("analyze %s: %w", url, err)
				}
				analyses = append(analyses, pa)
			}

			if c.outputJSON {
				return c.ui.JSON(analyses)
			}
			rows := make([][]string, 0, len(analyses))
			for _, pa := range analyses {
				rows = append(rows, []string{
					pa.ImageURL,
					pa.Condition.Overall,
					fmt.Sprintf("%.1f", pa.MarketAppeal.Score),
					fmt.Sprint(len(pa.Issues)),
					fmt.Sprintf("$%.0f-$%.0f", pa.RenovationEstimate.Minimum, pa.RenovationEstimate.Maximum),
					pa.Source,
				})
			}
			c.ui.Table([]string{"Photo", "Condition", "Appeal", "Issues", "Renovation", "Source"}, rows)
			return nil
		},
	}
	analyze.Flags().StringVar(&propertyType, "property-type", "", "property type hint")
	analyze.Flags().Float64Var(&price, "price", 0, "asking price hint")

	cmd.AddCommand(analyze)
	return cmd
}
