package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
	"github.com/loomworks/loom/internal/domain"
)

func init() {
	updateCmd.Flags().StringVar(&updateAgent, "agent", "", "Reporting agent ID (required)")
	updateCmd.Flags().StringVar(&updateType, "type", "progress", "Update type (progress|note|blocker|question|finding)")
	updateCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(updateCmd)

	rootCmd.AddCommand(historyCmd)
}

var (
	updateAgent string
	updateType  string
)

var updateCmd = &cobra.Command{
	Use:   "update <task-id> <content>",
	Short: "Append a progress note to a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	update, err := d.Engine.AddUpdate(context.Background(), args[0], updateAgent, args[1], domain.UpdateType(updateType), nil)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s update %s\n", update.Type, shortID(update.ID))
	return nil
}

var historyCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show a task's full change history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		entries, err := d.Engine.History(context.Background(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("[%s] %s %s: %q -> %q (by %s)\n",
				e.ChangedAt.Format("2006-01-02 15:04"), e.Type, e.FieldName, e.OldValue, e.NewValue, e.ChangedBy)
		}
		return nil
	},
}
