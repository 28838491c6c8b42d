// cmd/koinos-nodeman/lifecycle.go
package main

import (
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the node",
		Long:  "Brings up all node services and resumes sync from the last checkpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			rec, journal, err := a.openRecorder(flagHome)
			if err != nil {
				return err
			}
			defer journal.Close()

			a.out.Info("Starting node...")
			if err := a.manager.Start(cmd.Context()); err != nil {
				rec.Error("node start failed", err.Error())
				return err
			}

			snap := a.manager.Status()
			rec.Info("node started", string(snap.Status))
			a.out.Success("Node started (%s, block %d, %.1f%% synced).",
				snap.Status, snap.CurrentBlock, snap.SyncProgress)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			rec, journal, err := a.openRecorder(flagHome)
			if err != nil {
				return err
			}
			defer journal.Close()

			a.out.Info("Stopping node...")
			if err := a.manager.Stop(cmd.Context()); err != nil {
				rec.Error("node stop failed", err.Error())
				return err
			}
			rec.Info("node stopped", "")
			a.out.Success("Node stopped.")
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			rec, journal, err := a.openRecorder(flagHome)
			if err != nil {
				return err
			}
			defer journal.Close()

			a.out.Info("Restarting node...")
			if err := a.manager.Restart(cmd.Context()); err != nil {
				rec.Error("node restart failed", err.Error())
				return err
			}
			rec.Info("node restarted", "")
			a.out.Success("Node restarted.")
			return nil
		},
	}
}
