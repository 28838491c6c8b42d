// cmd/koinos-nodeman/logs.go
package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/koinosops/nodeman/internal/logs"
	"github.com/koinosops/nodeman/internal/paths"
)

func newLogsCmd() *cobra.Command {
	var (
		tail       int
		level      string
		since      time.Duration
		contains   string
		clear      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query the manager's event journal",
		Long:  "Prints recorded manager events (setup, downloads, lifecycle transitions) from the persistent journal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			home := flagHome
			if home == "" {
				home = paths.HomeDir()
			}
			journal, err := logs.OpenJournal(paths.EventsPath(home))
			if err != nil {
				return err
			}
			defer journal.Close()

			if clear {
				if err := journal.Clear(); err != nil {
					return err
				}
				a.out.Success("Event journal cleared.")
				return nil
			}

			q := logs.Query{Level: level, Contains: contains, Limit: tail}
			if since > 0 {
				cutoff := time.Now().Add(-since)
				q.Since = &cutoff
			}

			entries, err := journal.Find(q)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if len(entries) == 0 {
				a.out.Info("No matching events.")
				return nil
			}
			for _, e := range entries {
				a.out.Info("%s", e.String())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 50, "Maximum events to show (0 = all)")
	cmd.Flags().StringVar(&level, "level", "", "Filter by level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only events newer than this duration (e.g. 24h)")
	cmd.Flags().StringVar(&contains, "contains", "", "Filter by message substring")
	cmd.Flags().BoolVar(&clear, "clear", false, "Delete all recorded events")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON")
	return cmd
}
