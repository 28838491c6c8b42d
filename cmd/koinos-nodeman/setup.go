// cmd/koinos-nodeman/setup.go
package main

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/koinosops/nodeman/internal/prereq"
	"github.com/koinosops/nodeman/internal/setup"
)

func newSetupCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up a local Koinos node",
		Long: "Clones the node repository, seeds its configuration, and pre-pulls " +
			"service images. Safe to re-run; completed steps are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Install node files to %s", a.cfg.Node.InstallDir),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					a.out.Info("Setup cancelled.")
					return nil
				}
			}

			checker := prereq.NewChecker(prereq.Config{
				Runtime: a.runtime,
				DataDir: a.cfg.Node.DataDir,
			})
			results, err := checker.Check(cmd.Context())
			printPrereqResults(a, results)
			if err != nil {
				return err
			}

			rec, journal, err := a.openRecorder(flagHome)
			if err != nil {
				return err
			}
			defer journal.Close()

			installer := setup.New(setup.Config{
				InstallDir: a.cfg.Node.InstallDir,
				Runtime:    a.runtime,
				Logger:     a.logger,
			})
			a.out.Info("Setting up node in %s...", a.cfg.Node.InstallDir)
			if err := installer.Run(cmd.Context()); err != nil {
				rec.Error("setup failed", err.Error())
				return err
			}

			rec.Info("setup completed", a.cfg.Node.InstallDir)
			a.out.Success("Setup complete. Run 'koinos-nodeman download' to fetch a snapshot, then 'koinos-nodeman start'.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
