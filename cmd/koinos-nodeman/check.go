// cmd/koinos-nodeman/check.go
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koinosops/nodeman/internal/prereq"
)

func newCheckCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check host prerequisites",
		Long:  "Verifies required binaries, the container daemon, and host memory and disk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.out.SetJSONMode(jsonOutput)

			checker := prereq.NewChecker(prereq.Config{
				Runtime: a.runtime,
				DataDir: a.cfg.Node.DataDir,
			})
			results, checkErr := checker.Check(cmd.Context())

			if jsonOutput {
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return checkErr
			}

			printPrereqResults(a, results)
			if checkErr != nil {
				return checkErr
			}
			a.out.Success("All prerequisites met.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func printPrereqResults(a *app, results []prereq.Result) {
	for _, r := range results {
		switch {
		case r.Found && r.Version != "":
			a.out.Info("  ✓ %-15s %s", r.Name, r.Version)
		case r.Found:
			a.out.Info("  ✓ %s", r.Name)
		default:
			a.out.Error("  ✗ %-15s %s", r.Name, r.Message)
			if r.Suggestion != "" {
				a.out.Info("      %s", r.Suggestion)
			}
		}
	}
}
