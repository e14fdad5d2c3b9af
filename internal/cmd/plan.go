package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/overseer/internal/plan"
	"github.com/Iron-Ham/overseer/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create and inspect versioned plans",
}

var planNewCmd = &cobra.Command{
	Use:   "new <project>",
	Short: "Run the interactive planning Q&A and approve a plan",
	Long: `Start a planning session for a project goal. The engine asks
requirement, scope, architecture, and verification questions; vague
answers get a follow-up in the same category. Once a draft plan is
ready you review it and approve, which stores plan version 1.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanNew,
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored plans",
	RunE:  runPlanList,
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show a plan, latest version by default",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanShow,
}

var planHistoryCmd = &cobra.Command{
	Use:   "history <plan-id>",
	Short: "Show the version history of a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlanHistory,
}

var planRestoreCmd = &cobra.Command{
	Use:   "restore <plan-id> <version>",
	Short: "Restore a prior version as a new version",
	Args:  cobra.ExactArgs(2),
	RunE:  runPlanRestore,
}

func init() {
	planNewCmd.Flags().String("goal", "", "goal the plan should achieve")
	_ = planNewCmd.MarkFlagRequired("goal")
	planShowCmd.Flags().Int("version", 0, "plan version (0 means latest)")

	planCmd.AddCommand(planNewCmd, planListCmd, planShowCmd, planHistoryCmd, planRestoreCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlanNew(cmd *cobra.Command, args []string) error {
	goal, _ := cmd.Flags().GetString("goal")

	a, err := newApp(".")
	if err != nil {
		return err
	}
	defer a.close()

	view, err := a.planner.Start(args[0], goal)
	if err != nil {
		return err
	}
	fmt.Printf("Planning session %s started for %q\n", view.ID, goal)

	reader := bufio.NewScanner(os.Stdin)
	for view.Phase != planner.PhaseReviewing {
		if len(view.PendingQuestions) == 0 {
			return fmt.Errorf("session stalled in phase %s with no pending questions", view.Phase)
		}
		q := view.PendingQuestions[0]
		fmt.Printf("\n[%s] %s\n> ", q.Category, q.Text)
		if !reader.Scan() {
			return a.planner.Abandon(view.ID)
		}
		view, err = a.planner.Answer(view.ID, q.ID, strings.TrimSpace(reader.Text()))
		if err != nil {
			return err
		}
	}

	draft, err := a.planner.Draft(view.ID)
	if err != nil {
		return err
	}
	printPlan(draft)

	fmt.Print("\nApprove this plan? [y/N] ")
	if !reader.Scan() || !strings.EqualFold(strings.TrimSpace(reader.Text()), "y") {
		fmt.Println("Plan abandoned.")
		return a.planner.Abandon(view.ID)
	}

	approved, err := a.planner.Approve(cmd.Context(), view.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Plan %s stored at version %d\n", approved.ID, approved.Version)
	return nil
}

func runPlanList(cmd *cobra.Command, args []string) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}
	defer a.close()

	ids, err := a.plans.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No plans stored.")
		return nil
	}
	for _, id := range ids {
		p, err := a.plans.Get(cmd.Context(), id, 0)
		if err != nil {
			return err
		}
		fmt.Printf("%s  v%d  %s  %s\n", p.ID, p.Version, p.Project, p.Overview.Goal)
	}
	return nil
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	version, _ := cmd.Flags().GetInt("version")

	a, err := newApp(".")
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.plans.Get(cmd.Context(), args[0], version)
	if err != nil {
		return err
	}
	printPlan(p)
	return nil
}

func runPlanHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}
	defer a.close()

	history, err := a.plans.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, v := range history {
		fmt.Printf("v%d  %s  %s\n", v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Summary)
	}
	return nil
}

func runPlanRestore(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[1], err)
	}

	a, err := newApp(".")
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.plans.Restore(cmd.Context(), args[0], version)
	if err != nil {
		return err
	}
	fmt.Printf("Restored v%d of plan %s as v%d\n", version, p.ID, p.Version)
	return nil
}

func printPlan(p *plan.Plan) {
	fmt.Printf("\nPlan %s (v%d) for %s\n", p.ID, p.Version, p.Project)
	fmt.Printf("Goal: %s\n", p.Overview.Goal)
	for _, c := range p.Overview.SuccessCriteria {
		fmt.Printf("  success: %s\n", c)
	}
	for _, c := range p.Overview.Constraints {
		fmt.Printf("  constraint: %s\n", c)
	}
	for pi, phase := range p.Phases {
		fmt.Printf("\nPhase %d: %s\n", pi+1, phase.Name)
		for ti, task := range phase.Tasks {
			fmt.Printf("  [%d] (%s) %s\n", ti, task.Status, task.Description)
			if len(task.Files) > 0 {
				fmt.Printf("      files: %s\n", strings.Join(task.Files, ", "))
			}
		}
	}
	for _, d := range p.Decisions {
		fmt.Printf("\nDecision: %s\n  rationale: %s\n", d.Statement, d.Rationale)
	}
}
