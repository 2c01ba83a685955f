package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
	"github.com/fintuitive/fintuitive/internal/learning"
)

func trainCmd() *cobra.Command {
	var (
		moduleID string
		full     bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run rule mining over collected samples",
		Long: `Mines behavior rules from the sample stream. By default training is
incremental, using only samples newer than the last run; --full retrains
over every retained sample. Without --module all modules are trained.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			modules := eng.Modules()
			if moduleID != "" {
				module, err := eng.Module(moduleID)
				if err != nil {
					return err
				}
				modules = []*learning.Module{module}
			}

			ctx := cmd.Context()
			failed := 0
			for _, module := range modules {
				result := module.Train(ctx, !full)
				switch {
				case result.Success:
					cmd.Println(cli.SuccessStyle.Render(fmt.Sprintf(
						"✓ %-12s %d rules from %d samples in %s",
						module.ID(), result.RulesGenerated, result.SamplesUsed,
						formatDuration(result.Duration))))
				default:
					failed++
					cmd.Println(cli.ErrorStyle.Render(fmt.Sprintf(
						"✗ %-12s %s", module.ID(), result.Error)))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d modules failed to train", failed, len(modules))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&moduleID, "module", "m", "", "train a single module")
	cmd.Flags().BoolVar(&full, "full", false, "retrain over all retained samples")
	return cmd
}
