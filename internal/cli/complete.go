package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/loomworks/loom/internal/app/lifecycle"
	"github.com/loomworks/loom/internal/daemon"
	"github.com/loomworks/loom/internal/domain"
)

func init() {
	completeCmd.Flags().StringVar(&completeAgent, "agent", "", "Completing agent ID (required)")
	completeCmd.Flags().StringVar(&completeNotes, "notes", "", "Completion notes")
	completeCmd.Flags().StringVar(&followupTitle, "followup", "", "Create a followup task with this title")
	completeCmd.Flags().StringVar(&followupType, "followup-type", "concrete", "Followup task type")
	completeCmd.Flags().StringVar(&followupInstr, "followup-instruction", "", "Followup task instruction")
	completeCmd.Flags().StringVar(&followupVerify, "followup-verify", "", "Followup verification instruction")
	completeCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(completeCmd)
}

var (
	completeAgent  string
	completeNotes  string
	followupTitle  string
	followupType   string
	followupInstr  string
	followupVerify string
)

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark an owned task completed, optionally spawning a followup",
	Args:  cobra.ExactArgs(1),
	RunE:  runComplete,
}

func runComplete(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	var followup *lifecycle.FollowupSpec
	if followupTitle != "" {
		followup = &lifecycle.FollowupSpec{
			Title:                   followupTitle,
			Type:                    domain.TaskType(followupType),
			Instruction:             followupInstr,
			VerificationInstruction: followupVerify,
		}
	}

	task, followupTask, err := d.Engine.Complete(context.Background(), args[0], completeAgent, completeNotes, followup)
	if err != nil {
		return err
	}

	fmt.Printf("Completed task %s\n", task.ID)
	if followupTask != nil {
		fmt.Printf("Created followup task %s\n", followupTask.ID)
	}
	return nil
}
