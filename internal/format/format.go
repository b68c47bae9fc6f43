// Package format renders tabular CLI output. A Table builds once and
// renders as a fixed-width terminal table or a GitHub-flavoured Markdown
// table, so the same command can feed humans and docs.
package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// Table wraps go-pretty/v6 behind a small builder so commands never touch
// the library directly. Column tweaks accumulate and apply at render time.
type Table struct {
	w    table.Writer
	mode Mode
	cols map[int]table.ColumnConfig
}

// NewTable returns an empty table that renders in the given Mode.
func NewTable(m Mode) *Table {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &Table{w: w, mode: m, cols: make(map[int]table.ColumnConfig)}
}

// Header sets the column headers.
func (t *Table) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.w.AppendHeader(row)
}

// Row appends a data row. Values are stringified via fmt.Sprint.
func (t *Table) Row(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.w.AppendRow(row)
}

// Footer appends a footer row, e.g. totals.
func (t *Table) Footer(vals ...any) {
	row := make(table.Row, len(vals))
	copy(row, vals)
	t.w.AppendFooter(row)
}

// AlignRight right-aligns the given 1-based columns.
func (t *Table) AlignRight(cols ...int) {
	for _, n := range cols {
		cfg := t.cols[n]
		cfg.Number = n
		cfg.Align = text.AlignRight
		t.cols[n] = cfg
	}
}

// Limit caps the rendered width of a 1-based column; longer content wraps.
func (t *Table) Limit(col, width int) {
	cfg := t.cols[col]
	cfg.Number = col
	cfg.WidthMax = width
	t.cols[col] = cfg
}

// String renders the table in the configured Mode.
func (t *Table) String() string {
	if len(t.cols) > 0 {
		cfgs := make([]table.ColumnConfig, 0, len(t.cols))
		for _, cfg := range t.cols {
			cfgs = append(cfgs, cfg)
		}
		t.w.SetColumnConfigs(cfgs)
	}
	if t.mode == Markdown {
		return t.w.RenderMarkdown()
	}
	return t.w.Render()
}
