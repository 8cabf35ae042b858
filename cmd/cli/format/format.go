package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// OutputFormat determines how results are displayed.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// Render writes v as JSON, or headers and rows as CSV or a table.
func Render(w io.Writer, f OutputFormat, v any, headers []string, rows [][]string) error {
	switch f {
	case FormatJSON:
		return JSONTo(w, v)
	case FormatCSV:
		return CSV(w, headers, rows)
	}
	return table(w, headers, rows)
}

// table aligns columns and underlines each header with dashes.
func table(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	under := make([]string, len(headers))
	for i, h := range headers {
		under[i] = strings.Repeat("-", len(h))
	}
	for _, row := range append([][]string{headers, under}, rows...) {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// JSONTo renders v as indented JSON to the given writer.
func JSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CSV writes headers and rows as CSV to the given writer.
func CSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Runtime formats seconds per iteration, or "error" for the zero runtime
// of a failed run.
func Runtime(seconds float64) string {
	if seconds == 0 {
		return "error"
	}
	return fmt.Sprintf("%.6fs", seconds)
}

// Percent formats v with two decimals and a percent sign.
func Percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
