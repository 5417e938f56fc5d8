package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the collection for a full re-index",
	Long: `Delete every point in the configured collection and clear the resume
cursor. The next ingest starts from the first chunk.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, needs{})
	if err != nil {
		return err
	}
	defer a.Close()

	name := a.store.CollectionName()
	if !resetYes {
		fmt.Printf("Delete collection %q? [y/N] ", name)
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}
	if err := a.svc.Reset(ctx); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	if err := a.journal.Reset(ctx, name); err != nil {
		return fmt.Errorf("clear cursor: %w", err)
	}
	a.log.Info("collection deleted", "collection", name)
	fmt.Printf("Collection %q deleted.\n", name)
	return nil
}
