package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// Output formats accepted by -o.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatTable = "table"
)

func checkFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatTable:
		return nil
	}
	return fmt.Errorf("unknown output format %q (text, json, table)", format)
}

// printJSON outputs data as indented JSON to stdout.
func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printTable renders headers and rows as a table.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	table.Header(hdr...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("OK:"), msg)
}

// parseFloats reads exactly n whitespace-separated numbers.
func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d in %q", n, len(fields), s)
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", f)
		}
		out[i] = v
	}
	return out, nil
}

// parseHKL reads one "h k l" triple of integers.
func parseHKL(s string) ([3]int, error) {
	var hkl [3]int
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return hkl, fmt.Errorf("expected \"h k l\", got %q", s)
	}
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return hkl, fmt.Errorf("%q is not an integer index", f)
		}
		hkl[i] = v
	}
	return hkl, nil
}

// parseHKLList reads triples separated by semicolons or commas. Empty
// entries are skipped.
func parseHKLList(s string) ([][3]int, error) {
	var out [][3]int
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		hkl, err := parseHKL(part)
		if err != nil {
			return nil, err
		}
		out = append(out, hkl)
	}
	return out, nil
}

// colorWeight highlights how close a spot is to the sphere.
func colorWeight(w float64) string {
	s := strconv.FormatFloat(w, 'f', 3, 64)
	switch {
	case w < 0.25:
		return color.GreenString(s)
	case w < 0.75:
		return color.YellowString(s)
	default:
		return s
	}
}
