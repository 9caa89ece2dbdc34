package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/daemon"
	"github.com/loomworks/loom/internal/domain"
)

func init() {
	createCmd.Flags().StringVar(&createType, "type", "concrete", "Task type (concrete|abstract|epic)")
	createCmd.Flags().StringVar(&createInstruction, "instruction", "", "What the task requires")
	createCmd.Flags().StringVar(&createVerification, "verify", "", "How completion is verified")
	createCmd.Flags().StringVar(&createAgent, "agent", "cli", "Creating agent ID")
	createCmd.Flags().StringVar(&createProject, "project", "", "Project ID")
	createCmd.Flags().StringVar(&createParent, "parent", "", "Parent task ID")
	createCmd.Flags().StringVar(&createRelation, "relation", "", "Relationship to parent (subtask|followup|related|blocks)")
	createCmd.Flags().StringVar(&createPriority, "priority", "", "Priority (low|medium|high|critical)")
	rootCmd.AddCommand(createCmd)
}

var (
	createType         string
	createInstruction  string
	createVerification string
	createAgent        string
	createProject      string
	createParent       string
	createRelation     string
	createPriority     string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	spec := domain.TaskSpec{
		Title:                   args[0],
		Type:                    domain.TaskType(createType),
		Instruction:             createInstruction,
		VerificationInstruction: createVerification,
		AgentID:                 createAgent,
		ProjectID:               createProject,
		ParentTaskID:            createParent,
		Relationship:            domain.RelationshipType(createRelation),
	}
	if createPriority != "" {
		p, err := domain.ParsePriority(createPriority)
		if err != nil {
			return err
		}
		spec.Priority = &p
	}

	task, err := d.Engine.Create(context.Background(), spec)
	if err != nil {
		return err
	}

	fmt.Printf("Created task %s (%s, priority %s)\n", task.ID, task.Type, task.Priority)
	return nil
}
