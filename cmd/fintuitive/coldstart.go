package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
	"github.com/fintuitive/fintuitive/internal/coldstart"
)

func coldstartCmd() *cobra.Command {
	var (
		spendTier string
		lifeStage string
		region    string
	)

	cmd := &cobra.Command{
		Use:   "coldstart",
		Short: "Seed cold modules with community or built-in rule sets",
		Long: `Seeds every module still in cold start with a default rule set, trying
community-derived rules first and falling back to the shipped defaults.
Imported rules carry discounted confidence so real learning replaces
them as soon as local data accumulates. Modules with local data are
left alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			results := eng.ColdStart(cmd.Context(), coldstart.UserTraits{
				SpendTier: spendTier,
				LifeStage: lifeStage,
				Region:    region,
			})

			cmd.Println(cli.TitleStyle.Render("Cold Start"))
			for _, result := range results {
				switch result.Source {
				case coldstart.SeedSkipped:
					cmd.Printf("  %-12s %s\n", result.ModuleID,
						cli.SubtleStyle.Render("skipped"))
				default:
					cmd.Printf("  %-12s %s\n", result.ModuleID,
						cli.SuccessStyle.Render(fmt.Sprintf("%d rules from %s",
							result.Imported, result.Source)))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&spendTier, "spend-tier", "", "coarse spend tier (low, medium, high)")
	cmd.Flags().StringVar(&lifeStage, "life-stage", "", "life stage (student, family, retired, ...)")
	cmd.Flags().StringVar(&region, "region", "", "coarse region code")
	return cmd
}
