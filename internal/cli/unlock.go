package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
)

func init() {
	unlockCmd.Flags().StringVar(&unlockAgent, "agent", "", "Owning agent ID (required unless --force)")
	unlockCmd.Flags().BoolVar(&unlockForce, "force", false, "Operator override: release regardless of owner")
	rootCmd.AddCommand(unlockCmd)
}

var (
	unlockAgent string
	unlockForce bool
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <task-id>",
	Short: "Release a claimed task back to the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlock,
}

func runUnlock(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	if unlockForce {
		task, err := d.Engine.AdminUnlock(ctx, args[0], "operator")
		if err != nil {
			return err
		}
		fmt.Printf("Force-released task %s\n", task.ID)
		return nil
	}

	if unlockAgent == "" {
		return fmt.Errorf("--agent is required without --force")
	}
	task, err := d.Engine.Unlock(ctx, args[0], unlockAgent)
	if err != nil {
		return err
	}
	fmt.Printf("Released task %s\n", task.ID)
	return nil
}
