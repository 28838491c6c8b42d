// cmd/koinos-nodeman/status.go
package main

import (
	"encoding/json"
	"fmt"
	"time"

	"code.dogecoin.org/governor"
	"github.com/spf13/cobra"

	"github.com/koinosops/nodeman/internal/node"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		detailed   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show node status",
		Long:  "Reconciles and prints the node's lifecycle status, sync progress, and lifetime counters.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.out.SetJSONMode(jsonOutput)

			if detailed {
				report, err := a.manager.DetailedStatus(cmd.Context())
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			snap := a.manager.Refresh(cmd.Context())

			if jsonOutput {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			printStatus(a, snap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Full diagnostic report (containers, network, recent errors)")
	return cmd
}

func printStatus(a *app, snap node.NodeStatus) {
	a.out.Info("Status:        %s", snap.Status)
	if snap.ErrorMessage != "" {
		a.out.Error("%s", snap.ErrorMessage)
	}
	if snap.Status == node.StatusStopped {
		saved := a.store.State()
		if saved.LastBlock > 0 {
			a.out.Info("Last block:    %d (%.1f%% synced)", saved.LastBlock, saved.LastSyncProgress)
		}
	} else {
		target := fmt.Sprintf("%d", snap.TargetBlock)
		if snap.TargetEstimated {
			target += " (estimated)"
		}
		a.out.Info("Sync:          %.1f%% (block %d of %s)", snap.SyncProgress, snap.CurrentBlock, target)
		a.out.Info("Peers:         %d", snap.PeersCount)
	}

	saved := a.store.State()
	a.out.Info("Uptime:        %s", a.store.FormattedUptime())
	if saved.FirstSyncCompleted {
		a.out.Info("Initial sync:  complete")
	}
}

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously poll and print node status",
		Long:  "Runs the status poller in the foreground until interrupted, printing every refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.Node.PollInterval
			}

			poller := node.NewPoller(a.manager, a.store, interval)
			updates := poller.Subscribe()
			go func() {
				for snap := range updates {
					line := fmt.Sprintf("%s  block %d  %.1f%%  peers %d",
						snap.Status, snap.CurrentBlock, snap.SyncProgress, snap.PeersCount)
					if snap.TargetEstimated {
						line += "  (target estimated)"
					}
					a.out.Info("%s", line)
				}
			}()

			gov := governor.New().CatchSignals()
			gov.Add("status-poller", poller)
			gov.Start()
			gov.WaitForShutdown()
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default: from config)")
	return cmd
}
