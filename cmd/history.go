package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/ui/theme"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, domain := userDomain(cmd)
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		attempts, err := e.store.RecentAttempts(cmd.Context(), user, domain, limit)
		if err != nil {
			return fmt.Errorf("query attempts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(attempts) == 0 {
			fmt.Fprintln(out, "No attempts found.")
			return nil
		}

		fmt.Fprintf(out, "%-19s  %-12s  %-16s  %-8s  %6s  %s\n",
			"Time", "Item", "Topic", "Level", "Secs", "OK")
		fmt.Fprintln(out, strings.Repeat("─", 76))
		for _, a := range attempts {
			fmt.Fprintf(out, "%-19s  %-12s  %-16s  %-8s  %6.1f  %s\n",
				a.AttemptedAt.Local().Format("2006-01-02 15:04:05"),
				truncate(a.ItemID, 12),
				truncate(a.Topic, 16),
				difficulty.LevelOf(a.Difficulty),
				a.TimeSpentSeconds,
				theme.Mark(a.Correct),
			)
		}
		return nil
	},
}

func init() {
	userDomainFlags(historyCmd)
	historyCmd.Flags().Int("limit", 20, "Number of attempts to show")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
