package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
	"github.com/fintuitive/fintuitive/internal/model"
)

func insightsCmd() *cobra.Command {
	var (
		moduleID string
		refresh  bool
	)

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Show aggregated community insights for a module",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			var insight *model.GlobalInsight
			if refresh {
				insight, err = eng.RefreshInsight(ctx, moduleID)
			} else {
				insight, err = eng.Insight(ctx, moduleID)
			}
			if err != nil {
				return err
			}

			cmd.Println(cli.TitleStyle.Render(fmt.Sprintf("Community Insight (%s)", moduleID)))
			cmd.Printf("  %s %d users, generated %s\n",
				cli.BoldStyle.Render("Coverage:"),
				insight.TotalUsers,
				cli.SubtleStyle.Render(insight.GeneratedAt.Format("2006-01-02 15:04")))

			keys := make([]string, 0, len(insight.Buckets))
			for key := range insight.Buckets {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			for _, key := range keys {
				cmd.Printf("\n  %s\n", cli.BoldStyle.Render(key))
				for _, stat := range insight.Buckets[key] {
					cmd.Printf("    %-20s %5.1f%%  (%d users)\n",
						stat.Bucket, stat.Share*100, stat.UserCount)
				}
				if p, ok := insight.Percentiles[key]; ok {
					cmd.Println(cli.SubtleStyle.Render(fmt.Sprintf(
						"    p50=%.0f p90=%.0f p99=%.0f", p.P50, p.P90, p.P99)))
				}
			}

			if len(insight.Emerging) > 0 {
				cmd.Println(cli.TitleStyle.Render("\nEmerging Patterns"))
				for _, pattern := range insight.Emerging {
					style := cli.WarningStyle
					if pattern.Severity == model.SeverityHigh || pattern.Severity == model.SeverityCritical {
						style = cli.ErrorStyle
					}
					cmd.Printf("  %s %s/%s %.1fx growth, %d users\n",
						style.Render(fmt.Sprintf("[%s]", pattern.Severity)),
						pattern.DomainKey, pattern.Bucket,
						pattern.GrowthFactor, pattern.UserCount)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&moduleID, "module", "m", "", "module to inspect")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "force regeneration instead of serving the cache")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}
