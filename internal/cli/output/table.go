package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	// Headers returns the column headers for the table.
	Headers() []string
	// Rows returns the data rows for the table.
	Rows() [][]string
}

// PrintTable writes data as a borderless, left-aligned table.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}

// KeyValues is a two-column FIELD/VALUE table for single resources.
type KeyValues [][2]string

// Headers implements TableRenderer.
func (kv KeyValues) Headers() []string { return []string{"FIELD", "VALUE"} }

// Rows implements TableRenderer.
func (kv KeyValues) Rows() [][]string {
	rows := make([][]string, len(kv))
	for i, pair := range kv {
		rows[i] = []string{pair[0], pair[1]}
	}
	return rows
}
