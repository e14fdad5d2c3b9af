package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage agent sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted agent sessions",
	Long: `List every persisted agent session with its state. Sessions that
were live when the previous process died are shown as failed and
flagged for reconciliation; unreadable records are reported rather
than silently dropped.`,
	RunE: runSessionsList,
}

var sessionsStopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Stop a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsStop,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsStopCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}
	defer a.close()

	records := a.sessions.List()
	if len(records) == 0 {
		fmt.Println("No sessions.")
	}
	for _, r := range records {
		fmt.Printf("%s  %-13s  %s\n", r.ID, r.State, r.ProjectPath)
		if r.FailureInfo != "" {
			fmt.Printf("  failure: %s\n", r.FailureInfo)
		}
	}

	if rec := a.sessions.Reconciliation(); len(rec) > 0 {
		fmt.Printf("\n%d session(s) need reconciliation after restart:\n", len(rec))
		for _, r := range rec {
			fmt.Printf("  %s  (was live, marked failed)\n", r.ID)
		}
	}
	if errs := a.sessions.CorruptRecords(); len(errs) > 0 {
		fmt.Printf("\n%d corrupt session record(s):\n", len(errs))
		for _, err := range errs {
			fmt.Printf("  %v\n", err)
		}
	}
	return nil
}

func runSessionsStop(cmd *cobra.Command, args []string) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.sessions.Stop(args[0]); err != nil {
		return err
	}
	fmt.Printf("Session %s stopped\n", args[0])
	return nil
}
