package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/mnemo/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save, list, inspect, restore and prune snapshots",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write a snapshot of the current store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			h, err := a.eng.Save(cmd.Context(), store.ReasonManual)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %d records  %s\n", h.Name, h.Records, h.Checksum)
			return nil
		})
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			handles, err := a.eng.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(handles) == 0 {
				fmt.Fprintf(out, "No snapshots in %s.\n", a.snapDir)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCREATED\tBYTES")
			for _, h := range handles {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", h.Name, h.CreatedAt.Local().Format(time.DateTime), h.Size)
			}
			return tw.Flush()
		})
	},
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect [name]",
	Short: "Verify a snapshot and describe it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			info, err := a.eng.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		})
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Replace the store with a snapshot",
	Long:  "Load the named snapshot and save it again as the newest, so later commands start from it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(a *app) error {
			h, err := a.eng.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s (%d records)\n", h.Name, a.eng.Len())
			return nil
		})
	},
}

var snapshotPruneKeep int

var snapshotPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep := snapshotPruneKeep
		if !cmd.Flags().Changed("keep") {
			keep = cfg.Snapshot.Keep
		}
		if keep < 0 {
			return fmt.Errorf("--keep must be non-negative")
		}
		return withApp(cmd, false, func(a *app) error {
			removed, err := a.eng.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range removed {
				fmt.Fprintf(out, "removed %s\n", h.Name)
			}
			fmt.Fprintf(out, "%d removed\n", len(removed))
			return nil
		})
	},
}

func init() {
	snapshotPruneCmd.Flags().IntVar(&snapshotPruneKeep, "keep", 0, "number of snapshots to keep (default from config)")

	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotCmd.AddCommand(snapshotPruneCmd)
}
