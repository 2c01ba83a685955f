package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
	"github.com/fintuitive/fintuitive/internal/model"
)

func feedbackCmd() *cobra.Command {
	var (
		moduleID string
		label    string
		features []string
		wrong    bool
	)

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record a correction or confirmation for a prediction",
		Long: `Stores the true label as an explicit-feedback sample and adjusts the
confidence of the rules that produced the prediction: confirmed rules get
a small boost, contradicted rules decay.`,
		Example: `  fintuitive feedback -m category --feature merchant="Blue Bottle Coffee" --label "Coffee Shops"
  fintuitive feedback -m anomaly --feature category=Groceries --feature amount=240 --label normal --wrong`,
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

			sample := &model.Sample{
				ID:           uuid.NewString(),
				UserID:       eng.UserID(),
				ModuleID:     moduleID,
				Timestamp:    time.Now(),
				Label:        label,
				Features:     parsed,
				QualityScore: 1.0,
			}
			if err := module.Feedback(cmd.Context(), sample, !wrong); err != nil {
				return fmt.Errorf("failed to record feedback: %w", err)
			}

			if wrong {
				cmd.Println(cli.SuccessStyle.Render("✓ Correction recorded, matching rules decayed"))
			} else {
				cmd.Println(cli.SuccessStyle.Render("✓ Confirmation recorded, matching rules boosted"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&moduleID, "module", "m", "", "module the prediction came from")
	cmd.Flags().StringVarP(&label, "label", "l", "", "the true label")
	cmd.Flags().StringArrayVar(&features, "feature", nil, "feature as key=value (repeatable)")
	cmd.Flags().BoolVar(&wrong, "wrong", false, "the prediction was wrong")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
