package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one column of a history listing. Numeric columns are
// right aligned and their int cells are summed for the footer.
type column struct {
	title    string
	numeric  bool
	maxWidth int // longer cells wrap; zero is unlimited
}

// ledgerTable renders rows read from the rip history.
type ledgerTable struct {
	columns []column
	writer  table.Writer
	sums    []int
}

func newLedgerTable(columns ...column) *ledgerTable {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.title
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignLeft,
			AlignFooter: text.AlignLeft,
			WidthMax:    c.maxWidth,
		}
		if c.numeric {
			configs[i].Align = text.AlignRight
			configs[i].AlignFooter = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)
	return &ledgerTable{columns: columns, writer: tw, sums: make([]int, len(columns))}
}

// add appends a row. Missing trailing cells are left blank.
func (t *ledgerTable) add(cells ...any) {
	row := make(table.Row, len(t.columns))
	for i := range row {
		if i >= len(cells) {
			row[i] = ""
			continue
		}
		row[i] = cells[i]
		if n, ok := cells[i].(int); ok && t.columns[i].numeric {
			t.sums[i] += n
		}
	}
	t.writer.AppendRow(row)
}

// withTotals puts the numeric sums in a footer labelled in the first column.
func (t *ledgerTable) withTotals(label string) *ledgerTable {
	footer := make(table.Row, len(t.columns))
	for i, c := range t.columns {
		switch {
		case c.numeric:
			footer[i] = t.sums[i]
		case i == 0:
			footer[i] = label
		default:
			footer[i] = ""
		}
	}
	t.writer.AppendFooter(footer)
	return t
}

func (t *ledgerTable) String() string {
	if len(t.columns) == 0 {
		return ""
	}
	return t.writer.Render()
}
