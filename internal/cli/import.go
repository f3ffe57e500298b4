package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/mnemo/internal/memory"
)

// Category given to imported rows that carry none.
const preloadCategory = "preload"

// Accepted header names per column, first match wins.
var csvColumns = map[string][]string{
	"content":    {"content", "event_id"},
	"importance": {"base_importance", "importance", "emotional_weight"},
	"category":   {"category"},
	"kind":       {"kind"},
}

// parseCSV reads records from a CSV file with a header row. content and an
// importance column are required; category defaults to "preload" and kind to
// episodic. Extra columns become the record's context.
func parseCSV(r io.Reader) ([]memory.NewRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make(map[string]int, len(csvColumns))
	claimed := make(map[int]bool)
	for col, names := range csvColumns {
		cols[col] = -1
		for _, n := range names {
			if i, ok := index[n]; ok {
				cols[col] = i
				claimed[i] = true
				break
			}
		}
	}
	if cols["content"] < 0 || cols["importance"] < 0 {
		return nil, fmt.Errorf("%w: csv header needs content and base_importance columns", memory.ErrInvalidInput)
	}

	field := func(row []string, col string) string {
		i := cols[col]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []memory.NewRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		imp, err := strconv.ParseFloat(field(row, "importance"), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: importance: %v", memory.ErrInvalidInput, line, err)
		}
		nr := memory.NewRecord{
			Content:        field(row, "content"),
			BaseImportance: imp,
			Category:       field(row, "category"),
			Kind:           memory.Kind(field(row, "kind")),
		}
		if nr.Category == "" {
			nr.Category = preloadCategory
		}
		if nr.Kind == "" {
			nr.Kind = memory.Episodic
		}
		for i, v := range row {
			if claimed[i] || i >= len(header) || strings.TrimSpace(v) == "" {
				continue
			}
			if nr.Context == nil {
				nr.Context = make(map[string]string)
			}
			nr.Context[strings.TrimSpace(header[i])] = strings.TrimSpace(v)
		}
		out = append(out, nr)
	}
	return out, nil
}

var importCmd = &cobra.Command{
	Use:   "import [file.csv]",
	Short: "Preload memories from a CSV file",
	Long:  "Preload memories from a CSV file with a header row. Use - to read stdin.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}

		rows, err := parseCSV(r)
		if err != nil {
			return err
		}

		return withApp(cmd, true, func(a *app) error {
			for i, nr := range rows {
				if _, err := a.eng.Add(nr); err != nil {
					return fmt.Errorf("row %d: %w", i+1, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d memories (%d total)\n", len(rows), a.eng.Len())
			return nil
		})
	},
}
