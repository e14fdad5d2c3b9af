package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Run the verification gate against the project",
	Long: `Run the requested checks through the verification gate. Passing
file arguments narrows each check to the files that changed. The gate
reports a verdict per check; the run passes only if every check does.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("project", ".", "project working directory")
	verifyCmd.Flags().String("checks", "tests,style,types,security", "comma-separated verification checks")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	project, _ := cmd.Flags().GetString("project")
	checksFlag, _ := cmd.Flags().GetString("checks")

	a, err := newApp(project)
	if err != nil {
		return err
	}
	defer a.close()

	result := a.gate.Run(cmd.Context(), strings.Split(checksFlag, ","), args)
	for _, c := range result.Checks {
		verdict := "PASS"
		if !c.Passed {
			verdict = "FAIL"
		}
		fmt.Printf("%s  %-10s  %s\n", verdict, c.Name, firstLine(c.Output))
	}
	fmt.Println(result.Summary)
	if !result.Passed {
		return fmt.Errorf("verification failed")
	}
	return nil
}
