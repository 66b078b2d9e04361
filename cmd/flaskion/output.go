package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// render writes v as JSON or YAML, or as a table built from header and rows.
func render(w io.Writer, format string, v any, header []string, rows [][]string) error {
	switch format {
	case outputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case outputYAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		if len(rows) == 0 {
			_, err := fmt.Fprintln(w, "Nothing to show")
			return err
		}
		table := tablewriter.NewWriter(w)
		headerCells := make([]any, len(header))
		for i, h := range header {
			headerCells[i] = h
		}
		table.Header(headerCells...)
		for _, row := range rows {
			_ = table.Append(row)
		}
		return table.Render()
	}
}
