// cmd/koinos-nodeman/download.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koinosops/nodeman/internal/download"
	"github.com/koinosops/nodeman/internal/output"
)

func newDownloadCmd() *cobra.Command {
	var (
		url     string
		retries int
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and install the latest blockchain snapshot",
		Long: "Fetches a snapshot archive with resume support, extracts it, and " +
			"installs the data directories. An interrupted transfer continues from " +
			"its last checkpoint on the next attempt.",
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

			if url == "" {
				a.out.Info("Resolving latest snapshot from %s...", a.cfg.Snapshot.IndexURL)
				url, err = a.download.LatestSnapshotURL(cmd.Context())
				if err != nil {
					return err
				}
			}
			a.out.Info("Downloading %s", url)

			bar := output.NewDownloadBar()
			progress := func(p download.Progress) { bar.Update(p) }

			for attempt := 0; ; attempt++ {
				err = a.download.Download(cmd.Context(), url, progress)
				if err == nil {
					break
				}

				var partial *download.PartialTransferError
				if errors.As(err, &partial) && attempt < retries {
					a.out.Warn("%v", partial)
					a.out.Info("Resuming (attempt %d of %d)...", attempt+2, retries+1)
					continue
				}
				rec.Error("snapshot download failed", err.Error())
				return err
			}

			rec.Info("snapshot installed", url)
			bar.Finish(fmt.Sprintf("Snapshot installed into %s", a.cfg.Node.DataDir))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Snapshot archive URL (default: newest from the snapshot index)")
	cmd.Flags().IntVar(&retries, "retries", 3, "Automatic resume attempts after an interrupted transfer")
	return cmd
}
