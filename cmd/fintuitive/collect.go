package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/model"
)

func collectCmd() *cobra.Command {
	var (
		moduleID string
		filePath string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Ingest observation samples from a JSON-lines stream",
		Long: `Reads one JSON-encoded sample per line from --file (or stdin) and feeds
each into its learning module. Samples missing an ID or timestamp get
them filled in; samples over the module's capacity are dropped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			var reader io.Reader = os.Stdin
			if filePath != "" {
				f, err := os.Open(filePath)
				if err != nil {
					return fmt.Errorf("failed to open sample file: %w", err)
				}
				defer f.Close()
				reader = f
			}

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("Collecting samples"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionClearOnFinish(),
			)

			ctx := cmd.Context()
			collected, dropped := 0, 0
			scanner := bufio.NewScanner(reader)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}

				var sample model.Sample
				if err := json.Unmarshal(line, &sample); err != nil {
					return fmt.Errorf("invalid sample JSON: %w", err)
				}
				if sample.ModuleID == "" {
					sample.ModuleID = moduleID
				}
				if sample.ID == "" {
					sample.ID = uuid.NewString()
				}
				if sample.UserID == "" {
					sample.UserID = eng.UserID()
				}
				if sample.Source == "" {
					sample.Source = model.SourceImplicitBehavior
				}

				module, err := eng.Module(sample.ModuleID)
				if err != nil {
					return err
				}
				if err := module.CollectSample(ctx, &sample); err != nil {
					if errors.Is(err, common.ErrCapacityExceeded) {
						dropped++
						continue
					}
					return err
				}
				collected++
				_ = bar.Add(1)
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read samples: %w", err)
			}
			_ = bar.Finish()

			cmd.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Collected %d samples", collected)))
			if dropped > 0 {
				cmd.Println(cli.WarningStyle.Render(fmt.Sprintf("  %d samples dropped", dropped)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&moduleID, "module", "m", "", "default module for samples without one")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "JSON-lines sample file (default: stdin)")
	return cmd
}
