package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/overseer/internal/agent"
)

var runCmd = &cobra.Command{
	Use:   "run <plan-id> <phase> <task>",
	Short: "Delegate one plan task to an agent session and supervise it",
	Long: `Delegate a single plan task: acquire its file locks, assemble a
token-budgeted context, start an agent session, and supervise the run.
On completion the verification gate runs the requested checks; a failed
verification counts as a task failure and is retried under the
supervisor's retry policy.`,
	Args: cobra.ExactArgs(3),
	RunE: runTask,
}

func init() {
	runCmd.Flags().String("project", ".", "project working directory")
	runCmd.Flags().String("checks", "tests,style,types,security", "comma-separated verification checks")
	rootCmd.AddCommand(runCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	phase, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid phase %q: %w", args[1], err)
	}
	index, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid task index %q: %w", args[2], err)
	}
	project, _ := cmd.Flags().GetString("project")
	checksFlag, _ := cmd.Flags().GetString("checks")
	checks := strings.Split(checksFlag, ",")

	a, err := newApp(project)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	task, err := a.tasks.Delegate(ctx, args[0], phase, index)
	if err != nil {
		return err
	}
	fmt.Printf("Delegated task %s (%s)\n", task.ID, task.Description)

	sessionID, err := a.sessions.Start(project)
	if err != nil {
		cancelErr := a.tasks.Cancel(ctx, task.ID)
		if cancelErr != nil {
			return fmt.Errorf("failed to start session: %w (and rollback failed: %v)", err, cancelErr)
		}
		return fmt.Errorf("failed to start session: %w", err)
	}
	if err := a.tasks.MarkInProgress(ctx, task.ID, sessionID); err != nil {
		return err
	}
	if _, err := a.sup.Start(task.ID, sessionID); err != nil {
		return err
	}
	fmt.Printf("Session %s started, supervising\n", sessionID)

	resp, err := a.sessions.Send(ctx, sessionID, task.Context.Prompt(), agent.ProfileRestricted)
	if err != nil {
		if rerr := a.sup.ReportFailure(ctx, task.ID, err.Error()); rerr != nil {
			return rerr
		}
		return reportState(a, task.ID)
	}
	fmt.Printf("Agent finished: %s\n", firstLine(resp.Text))

	result := a.gate.Run(ctx, checks, task.Resources)
	fmt.Printf("Verification: %s\n", result.Summary)
	if !result.Passed {
		for _, c := range result.Checks {
			if !c.Passed {
				fmt.Printf("  FAIL %s: %s\n", c.Name, firstLine(c.Output))
			}
		}
		if rerr := a.sup.ReportFailure(ctx, task.ID, "verification failed: "+result.Summary); rerr != nil {
			return rerr
		}
		return reportState(a, task.ID)
	}

	if err := a.tasks.MarkCompleted(ctx, task.ID, resp.Text); err != nil {
		return err
	}
	if err := a.sup.NotifyCompleted(task.ID); err != nil {
		return err
	}
	fmt.Printf("Task %s completed and verified\n", task.ID)
	return nil
}

func reportState(a *app, taskID string) error {
	st, err := a.sup.State(taskID)
	if err != nil {
		return err
	}
	fmt.Printf("Task %s is %s (retries: %d)\n", taskID, st.Status, st.RetryCount)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
