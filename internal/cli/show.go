package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task's full context: ancestry, updates, stale warning",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	tc, err := d.Engine.Context(context.Background(), args[0])
	if err != nil {
		return err
	}

	t := tc.Task
	fmt.Printf("Task:     %s\n", t.ID)
	fmt.Printf("Title:    %s\n", t.Title)
	fmt.Printf("Type:     %s\n", t.Type)
	fmt.Printf("Status:   %s\n", t.Status)
	fmt.Printf("Priority: %s\n", t.Priority)
	if t.AssignedAgent != "" {
		fmt.Printf("Agent:    %s\n", t.AssignedAgent)
	}
	if tc.Project != nil {
		fmt.Printf("Project:  %s\n", tc.Project.Name)
	}
	if t.Instruction != "" {
		fmt.Printf("\nInstruction:\n  %s\n", t.Instruction)
	}
	if t.VerificationInstruction != "" {
		fmt.Printf("Verification:\n  %s\n", t.VerificationInstruction)
	}

	if tc.StaleWarning != nil {
		fmt.Printf("\nWARNING: previous reservation by %s was released by timeout at %s;\npartial work may exist.\n",
			tc.StaleWarning.PriorAgent, tc.StaleWarning.ReleasedAt.Format("2006-01-02 15:04"))
	}

	if len(tc.Ancestry) > 0 {
		fmt.Println("\nAncestry (nearest first):")
		for _, a := range tc.Ancestry {
			fmt.Printf("  %s  %s (%s)\n", shortID(a.ID), a.Title, a.Status)
		}
		if tc.CycleDetected {
			fmt.Println("  (relationship cycle detected; chain truncated)")
		}
	}

	if len(tc.Updates) > 0 {
		fmt.Println("\nUpdates:")
		for _, u := range tc.Updates {
			fmt.Printf("  [%s] %s %s: %s\n",
				u.CreatedAt.Format("2006-01-02 15:04"), u.Type, u.AgentID, u.Content)
		}
	}
	return nil
}
