package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
)

// withApp opens the configured engine, runs fn against it and, when mutates is
// set, persists the result as a manual snapshot.
func withApp(cmd *cobra.Command, mutates bool, fn func(a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(a); err != nil {
		return err
	}
	if !mutates {
		return nil
	}
	_, err = a.persist(ctx, cfg.Snapshot.Keep)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecord(w io.Writer, r memory.Record) {
	cat := r.Category
	if cat == "" {
		cat = "-"
	}
	fmt.Fprintf(w, "%s  [%.3f]  %-10s %-12s %s\n", r.ID, r.CurrentImportance, r.Kind, cat, r.Content)
}

// --- add ---

var (
	addImportance float64
	addCategory   string
	addKind       string
	addContext    map[string]string
)

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Remember something",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(a *app) error {
			rec, err := a.eng.Add(memory.NewRecord{
				Content:        strings.Join(args, " "),
				BaseImportance: addImportance,
				Category:       addCategory,
				Kind:           memory.Kind(addKind),
				Context:        addContext,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		})
	},
}

// --- get / rm ---

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one memory as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			rec, err := a.eng.Get(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Forget a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(a *app) error {
			if !a.eng.Remove(args[0]) {
				return fmt.Errorf("%w: %s", memory.ErrNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		})
	},
}

// --- list ---

var listCategory string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			records := a.eng.List(listCategory)
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No memories.")
				return nil
			}
			for _, r := range records {
				printRecord(out, r)
			}
			return nil
		})
	},
}

// --- recall ---

var (
	recallLimit    int
	recallCategory string
	recallWeights  string
)

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Rank memories against a query",
	Long:  "Rank memories by similarity, current importance and recency. Every returned memory is reinforced.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := engine.RecallOpts{Limit: recallLimit, Category: recallCategory}
		if recallWeights != "" {
			w, err := engine.ParseWeights(recallWeights)
			if err != nil {
				return err
			}
			opts.Weights = &w
		}

		return withApp(cmd, true, func(a *app) error {
			matches := a.eng.Recall(strings.Join(args, " "), opts)
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			for i, m := range matches {
				fmt.Fprintf(out, "%d. [%.3f] %s\n", i+1, m.Score, m.Record.Content)
				fmt.Fprintf(out, "   %s  sim=%.3f importance=%.3f recency=%.3f\n",
					m.Record.ID, m.Similarity, m.Record.CurrentImportance, m.Recency)
			}
			return nil
		})
	},
}

// --- decay / reset ---

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Run one decay pass now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(a *app) error {
			res := a.eng.Decay()
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, updated %d, evicted %d, %d remaining\n",
				res.Scanned, res.Updated, len(res.Evicted), a.eng.Len())
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:       "reset [soft|hard]",
	Short:     "Clear the store",
	Long:      "soft runs one decay pass with the age penalty doubled. hard drops every memory. A backup snapshot is written first.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(memory.ResetSoft), string(memory.ResetHard)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, true, func(a *app) error {
			res, backup, err := a.eng.Reset(cmd.Context(), memory.ResetMode(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reset: evicted %d, %d remaining (backup %s)\n",
				args[0], len(res.Evicted), a.eng.Len(), backup.Name)
			return nil
		})
	},
}

func init() {
	addCmd.Flags().Float64VarP(&addImportance, "importance", "i", 0.5, "base importance in [0,1]")
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "category label")
	addCmd.Flags().StringVarP(&addKind, "kind", "k", string(memory.Episodic), "episodic, semantic or procedural")
	addCmd.Flags().StringToStringVar(&addContext, "context", nil, "context metadata as key=value pairs")

	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "filter by category")

	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 0, "maximum number of results (default from config)")
	recallCmd.Flags().StringVarP(&recallCategory, "category", "c", "", "filter by category")
	recallCmd.Flags().StringVarP(&recallWeights, "weights", "w", "", `channel weights, "e,s,p" or one shared value`)
}
