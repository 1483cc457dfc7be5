package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/assessor/internal/catalog"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Validate and import an item bank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")

		items, err := catalog.LoadFile(args[0], domain)
		if err != nil {
			return err
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.store.UpsertItems(cmd.Context(), items)
		if err != nil {
			return fmt.Errorf("import items: %w", err)
		}
		e.log.Info("catalog imported", zap.String("file", args[0]), zap.Int("items", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d items from %s\n", n, args[0])
		return nil
	},
}

func init() {
	importCmd.Flags().StringP("domain", "d", "", "Domain applied to every item (overrides the file)")
}
