package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-module learning health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			cmd.Println(cli.TitleStyle.Render("Learning Modules"))

			header := fmt.Sprintf("%-12s %-12s %8s %6s %9s %10s %7s",
				"MODULE", "STAGE", "SAMPLES", "RULES", "FEEDBACK", "ACCURACY", "F1")
			cmd.Println(cli.TableHeaderStyle.Render(header))

			ctx := cmd.Context()
			for _, module := range eng.Modules() {
				m := module.GetMetrics(ctx)

				accuracy, f1 := "-", "-"
				if m.FeedbackCount > 0 {
					accuracy = fmt.Sprintf("%.0f%%", m.Accuracy*100)
					if m.Precision+m.Recall > 0 {
						f1 = fmt.Sprintf("%.2f", 2*m.Precision*m.Recall/(m.Precision+m.Recall))
					}
				}

				row := fmt.Sprintf("%-12s %-12s %8d %6d %9d %10s %7s",
					m.ModuleID, stageLabel(string(m.Stage)), m.SampleCount,
					m.RuleCount, m.FeedbackCount, accuracy, f1)
				cmd.Println(cli.TableCellStyle.Render(row))
			}

			if pending := eng.PendingReports(); pending > 0 {
				cmd.Println(cli.SubtleStyle.Render(
					fmt.Sprintf("\n%d sanitized patterns awaiting delivery", pending)))
			}
			return nil
		},
	}
}

// stageLabel colors lifecycle stages that deserve attention.
func stageLabel(stage string) string {
	switch stage {
	case "degraded":
		return cli.ErrorStyle.Render(stage)
	case "active":
		return stage
	default:
		return strings.ToLower(stage)
	}
}
