package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
)

func exportCmd() *cobra.Command {
	var (
		moduleID string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a module's learned rules to a snapshot file",
		Long: `Writes a versioned JSON snapshot of a module's rule set, suitable for
backup or seeding another device. Raw samples never leave the device;
only the derived rules are exported.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			module, err := eng.Module(moduleID)
			if err != nil {
				return err
			}

			export, err := module.ExportModel(cmd.Context())
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(export, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode export: %w", err)
			}
			data = append(data, '\n')

			if output == "" {
				cmd.Print(string(data))
				return nil
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			cmd.Println(cli.SuccessStyle.Render(fmt.Sprintf(
				"✓ Exported %d rules to %s", len(export.Rules), output)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&moduleID, "module", "m", "", "module to export")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}
