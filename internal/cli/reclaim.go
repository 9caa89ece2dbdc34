package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
)

func init() {
	reclaimCmd.Flags().DurationVar(&reclaimTimeout, "timeout", 0, "Reservation timeout (default from config)")
	rootCmd.AddCommand(reclaimCmd)
	staleCmd.Flags().DurationVar(&staleTimeout, "timeout", 0, "Reservation timeout (default from config)")
	rootCmd.AddCommand(staleCmd)
}

var (
	reclaimTimeout time.Duration
	staleTimeout   time.Duration
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Release every reservation older than the timeout",
	RunE:  runReclaim,
}

func runReclaim(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	timeout := reclaimTimeout
	if timeout == 0 {
		timeout = d.Config.ReservationTimeout()
	}

	reclaimed, err := d.Engine.ReclaimStale(context.Background(), timeout)
	if err != nil {
		return err
	}

	if len(reclaimed) == 0 {
		fmt.Println("No stale reservations.")
		return nil
	}
	for _, t := range reclaimed {
		fmt.Printf("Released %s  %s\n", shortID(t.ID), t.Title)
	}
	return nil
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List reservations older than the timeout without releasing them",
	RunE:  runStale,
}

func runStale(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	timeout := staleTimeout
	if timeout == 0 {
		timeout = d.Config.ReservationTimeout()
	}

	tasks, err := d.Queries.Stale(context.Background(), timeout)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No stale reservations.")
		return nil
	}
	for _, t := range tasks {
		fmt.Printf("%s  %s (agent %s, reserved %s)\n",
			shortID(t.ID), t.Title, t.AssignedAgent, t.ReservedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
