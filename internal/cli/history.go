package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent decay passes and evictions from the journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			passes, evictions, err := a.eng.History(historyLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(passes) == 0 {
				fmt.Fprintln(out, "No decay passes recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RAN AT\tMODE\tSCANNED\tUPDATED\tEVICTED")
			for _, p := range passes {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", stamp(p.RanAt), p.Mode, p.Scanned, p.Updated, p.Evicted)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if len(evictions) > 0 {
				fmt.Fprintln(out)
				for _, ev := range evictions {
					fmt.Fprintf(out, "%s  evicted %s [%.3f] %s\n", stamp(ev.EvictedAt), ev.RecordID, ev.Importance, ev.Content)
				}
			}
			return nil
		})
	},
}

func stamp(ms int64) string {
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of passes and evictions to show")
}
