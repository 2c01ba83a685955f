package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
	"github.com/fintuitive/fintuitive/internal/model"
)

func predictCmd() *cobra.Command {
	var (
		moduleID string
		features []string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Ask a module for a prediction",
		Example: `  fintuitive predict -m category --feature merchant="Blue Bottle Coffee"
  fintuitive predict -m anomaly --feature category=Groceries --feature amount=240
  fintuitive predict -m intent --feature query="how much did I spend on food"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseFeatures(features)
			if err != nil {
				return err
			}

			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			module, err := eng.Module(moduleID)
			if err != nil {
				return err
			}

			prediction := module.Predict(cmd.Context(), model.PredictionInput{
				Features: parsed,
			})

			style := cli.SuccessStyle
			if !prediction.Matched {
				style = cli.WarningStyle
			}
			cmd.Println(cli.TitleStyle.Render(fmt.Sprintf("Prediction (%s)", moduleID)))
			cmd.Printf("  %s %s\n", cli.BoldStyle.Render("Result:"), style.Render(prediction.Result))
			cmd.Printf("  %s %.2f\n", cli.BoldStyle.Render("Confidence:"), prediction.Confidence)
			cmd.Printf("  %s %s\n", cli.BoldStyle.Render("Source:"), string(prediction.Source))
			if prediction.RuleID != "" {
				cmd.Printf("  %s %s\n", cli.BoldStyle.Render("Rule:"), cli.SubtleStyle.Render(prediction.RuleID))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&moduleID, "module", "m", "", "module to query")
	cmd.Flags().StringArrayVar(&features, "feature", nil, "feature as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}
