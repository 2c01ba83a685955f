package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
	"github.com/fintuitive/fintuitive/internal/model"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Merge an exported rule snapshot into its module",
		Long: `Loads a snapshot produced by export and merges its rules. An imported
rule only replaces an existing one when it carries strictly higher
confidence, so local learning is never overwritten by a stale backup.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}

			var export model.ModelExport
			if err := json.Unmarshal(data, &export); err != nil {
				return fmt.Errorf("invalid snapshot: %w", err)
			}

			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			module, err := eng.Module(export.ModuleID)
			if err != nil {
				return err
			}

			imported, err := module.ImportModel(cmd.Context(), &export)
			if err != nil {
				return err
			}

			skipped := len(export.Rules) - imported
			cmd.Println(cli.SuccessStyle.Render(fmt.Sprintf(
				"✓ Imported %d rules into %s", imported, export.ModuleID)))
			if skipped > 0 {
				cmd.Println(cli.SubtleStyle.Render(fmt.Sprintf(
					"  %d rules skipped (existing confidence was higher)", skipped)))
			}
			return nil
		},
	}
}
