package main

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// column describes one table column; numeric columns are right aligned.
type column struct {
	title   string
	numeric bool
}

var (
	postColumns    = []column{{"#", true}, {"ID", true}, {"Date", false}, {"Text", false}, {"Topics", false}, {"Comment", false}}
	topicColumns   = []column{{"ID", true}, {"Name", false}, {"Posts", true}}
	channelColumns = []column{{"ID", true}, {"Username", false}, {"Name", false}}
	jobColumns     = []column{{"Job", false}, {"Selection", false}, {"State", false}, {"Done", true}, {"Rounds", true}, {"Finished", false}}
)

// previewWidth bounds post and comment excerpts in list tables.
const previewWidth = 60

func renderTable(cols []column, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(cols))
	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, c := range cols {
		header = append(header, c.title)
		align := text.AlignLeft
		if c.numeric {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, values := range rows {
		row := make(table.Row, len(cols))
		for i := range row {
			if i < len(values) {
				row[i] = values[i]
			} else {
				row[i] = ""
			}
		}
		tw.AppendRow(row)
	}
	return tw.Render() + "\n"
}

// preview flattens s to one line and cuts it to width runes.
func preview(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
