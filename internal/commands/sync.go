package commands

import (
	"encoding/json"
	"fmt"

	"github.com/devoll/rhga-schedule-bot/internal/syncer"

	"github.com/spf13/cobra"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var sheet string
	var all bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the timetable from Google Sheets once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if !all {
				rep, err := a.sync.SyncSheet(cmd.Context(), sheet)
				if err != nil {
					return fmt.Errorf("sync failed (%s): %w", syncer.Classify(err), err)
				}
				return enc.Encode(rep)
			}

			reports, failures := a.sync.SyncAll(cmd.Context())
			for _, rep := range reports {
				if err := enc.Encode(rep); err != nil {
					return err
				}
			}
			for _, f := range failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "sheet '%s' failed (%s): %v\n", f.Sheet, syncer.Classify(f.Err), f.Err)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d sheet(s) failed", len(failures), len(a.sync.SheetNames()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "Sheet to sync (default: the configured default sheet)")
	cmd.Flags().BoolVar(&all, "all", false, "Sync every configured sheet")
	return cmd
}
