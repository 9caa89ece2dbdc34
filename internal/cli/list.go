package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
	"github.com/loomworks/loom/internal/domain"
)

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (available|in_progress|completed)")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by task type")
	listCmd.Flags().StringVar(&listProject, "project", "", "Filter by project ID")
	listCmd.Flags().StringVar(&listAgent, "agent", "", "Filter by assigned agent")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum rows to return")
	rootCmd.AddCommand(listCmd)
}

var (
	listStatus  string
	listType    string
	listProject string
	listAgent   string
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks, highest priority first",
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	f := domain.TaskFilter{
		ProjectID: listProject,
		AgentID:   listAgent,
		Limit:     listLimit,
	}
	if listStatus != "" {
		st := domain.Status(listStatus)
		if !st.Valid() {
			return fmt.Errorf("unknown status %q", listStatus)
		}
		f.Status = &st
	}
	if listType != "" {
		tt := domain.TaskType(listType)
		if !tt.Valid() {
			return fmt.Errorf("unknown task type %q", listType)
		}
		f.Type = &tt
	}

	tasks, err := d.Queries.Tasks(context.Background(), f)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks. Run 'loom create <title>' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tSTATUS\tPRIORITY\tAGENT")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(t.ID), t.Title, t.Type, t.Status, t.Priority, t.AssignedAgent)
	}
	return w.Flush()
}

// shortID truncates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
