package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
)

func init() {
	reserveCmd.Flags().StringVar(&reserveAgent, "agent", "", "Reserving agent ID (required)")
	reserveCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(reserveCmd)
}

var reserveAgent string

var reserveCmd = &cobra.Command{
	Use:   "reserve <task-id>",
	Short: "Atomically claim an available task",
	Args:  cobra.ExactArgs(1),
	RunE:  runReserve,
}

func runReserve(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	tc, err := d.Engine.Reserve(context.Background(), args[0], reserveAgent)
	if err != nil {
		return err
	}

	fmt.Printf("Reserved task %s for %s\n", tc.Task.ID, reserveAgent)
	if tc.StaleWarning != nil {
		fmt.Printf("WARNING: prior reservation by %s timed out; check for partial work.\n",
			tc.StaleWarning.PriorAgent)
	}
	return nil
}
