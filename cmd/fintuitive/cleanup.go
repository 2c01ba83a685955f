package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fintuitive/fintuitive/internal/cli"
)

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Evict expired and overflow samples from every module",
		Long: `Applies the retention policy: samples older than the retention window are
deleted, and modules over their sample cap are trimmed oldest-first back
under the cleanup target.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := eng.Cleanup(cmd.Context())
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(results))
			for id := range results {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			cmd.Println(cli.TitleStyle.Render("Cleanup"))
			total := 0
			for _, id := range ids {
				result := results[id]
				evicted := result.ExpiredEvicted + result.OverflowEvicted
				total += evicted
				cmd.Printf("  %-12s evicted %d (%d expired, %d overflow), %d remaining\n",
					id, evicted, result.ExpiredEvicted, result.OverflowEvicted, result.Remaining)
			}
			cmd.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Evicted %d samples", total)))
			return nil
		},
	}
}
