package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
	"github.com/loomworks/loom/internal/domain"
)

func init() {
	perfCmd.Flags().StringVar(&perfType, "type", "", "Restrict to one task type")
	rootCmd.AddCommand(perfCmd)
}

var perfType string

var perfCmd = &cobra.Command{
	Use:   "perf <agent-id>",
	Short: "Show completed-task counts and mean completion time for an agent",
	Args:  cobra.ExactArgs(1),
	RunE:  runPerf,
}

func runPerf(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	var taskType *domain.TaskType
	if perfType != "" {
		tt := domain.TaskType(perfType)
		taskType = &tt
	}

	perf, err := d.Queries.AgentPerformance(context.Background(), args[0], taskType)
	if err != nil {
		return err
	}

	fmt.Printf("Agent %s: %d completed, avg %s\n",
		perf.AgentID, perf.CompletedCount, meanDuration(perf.AvgCompletionSecs))

	if len(perf.ByType) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tCOMPLETED\tAVG TIME")
		for tt, b := range perf.ByType {
			fmt.Fprintf(w, "%s\t%d\t%s\n", tt, b.CompletedCount, meanDuration(b.AvgCompletionSecs))
		}
		return w.Flush()
	}
	return nil
}

func meanDuration(secs float64) string {
	if secs <= 0 {
		return "-"
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Second).String()
}
