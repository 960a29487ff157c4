package util

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Table accumulates rows of cells and renders them with aligned columns.
type Table struct {
	sb     *strings.Builder
	writer *tabwriter.Writer
}

func NewTable(header ...string) *Table {
	sb := &strings.Builder{}
	t := &Table{
		sb:     sb,
		writer: tabwriter.NewWriter(sb, 1, 4, 2, ' ', 0),
	}
	if len(header) > 0 {
		t.Row(header...)
	}
	return t
}

// Row appends one row. strings.Builder never fails, so neither does this.
func (t *Table) Row(cells ...string) {
	_, _ = fmt.Fprintln(t.writer, strings.Join(cells, "\t"))
}

// Rowf appends one row built from a format whose fields are separated by tabs.
func (t *Table) Rowf(format string, a ...any) {
	_, _ = fmt.Fprintf(t.writer, format+"\n", a...)
}

// String flushes pending rows and returns the rendered table.
func (t *Table) String() string {
	_ = t.writer.Flush()
	return t.sb.String()
}
