package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete a learner's profile and attempts for a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, domain := userDomain(cmd)
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes {
			fmt.Fprintf(cmd.OutOrStdout(), "Delete all progress for %s in %s? [y/N] ", user, domain)
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(line)); a != "y" && a != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		if err := e.store.DeleteProfile(ctx, user, domain); err != nil {
			return err
		}
		n, err := e.store.DeleteAttempts(ctx, user, domain)
		if err != nil {
			return err
		}
		e.log.Info("learner reset", zap.String("user_id", user), zap.String("domain", domain), zap.Int64("attempts", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Removed profile and %d attempts.\n", n)
		return nil
	},
}

func init() {
	userDomainFlags(resetCmd)
	resetCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
}
