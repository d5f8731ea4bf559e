package types

import (
	"slices"
	"strings"
)

// Well-known columns written by the pipeline stages.
const (
	ColumnAssistant   = "assistant"
	ColumnLLMEval     = "LLM_Eval"
	ColumnIsAugmented = "is_augmented"

	AugmentedYes = "Yes"
	AugmentedNo  = "No"
)

// Row is one record of a dataset: column name to cell value.
// A missing column reads as the empty string.
type Row map[string]string

// Get returns the cell value for column, or "" when absent.
func (r Row) Get(column string) string {
	if r == nil || column == "" {
		return ""
	}
	return r[column]
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SourceText space-joins the non-empty cell values in column order.
func (r Row) SourceText(columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		if v := r[c]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// FirstPopulated returns the first column (in order) holding a non-empty value.
func (r Row) FirstPopulated(columns []string) (string, bool) {
	for _, c := range columns {
		if r[c] != "" {
			return c, true
		}
	}
	return "", false
}

// Dataset is an ordered sequence of rows. Order is significant.
type Dataset []Row

// Table pairs a dataset with its ordered header list.
//
// Rows are maps, so column order lives here. Columns may lag behind the rows
// (rows can carry keys the header has not seen yet); Headers reconciles both.
type Table struct {
	Columns []string `json:"headers"`
	Rows    Dataset  `json:"rows"`
}

// NewTable builds a table, deriving missing headers from the rows.
// Keys absent from columns are appended in sorted order per row, since map
// iteration order carries no meaning.
func NewTable(columns []string, rows Dataset) Table {
	t := Table{Columns: append([]string(nil), columns...), Rows: rows}
	t.Columns = t.Headers()
	return t
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Headers returns the declared columns followed by any extra keys found in rows.
func (t Table) Headers() []string {
	seen := make(map[string]struct{}, len(t.Columns))
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, row := range t.Rows {
		extra := make([]string, 0)
		for k := range row {
			if _, ok := seen[k]; !ok {
				extra = append(extra, k)
			}
		}
		slices.Sort(extra)
		for _, k := range extra {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// WithColumn returns the header list with column appended if missing.
func (t Table) WithColumn(column string) []string {
	for _, c := range t.Columns {
		if c == column {
			return t.Columns
		}
	}
	return append(append([]string(nil), t.Columns...), column)
}

// WithLeadingColumn returns the header list with column prepended if missing.
func (t Table) WithLeadingColumn(column string) []string {
	for _, c := range t.Columns {
		if c == column {
			return t.Columns
		}
	}
	return append([]string{column}, t.Columns...)
}
