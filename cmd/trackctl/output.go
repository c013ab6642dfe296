package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"trackmaster/internal/analytics"
	"trackmaster/internal/websites"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// render writes rows as an aligned table for a terminal and v as JSON
// otherwise, so the output can be piped into other tools. rows[0] is the header.
func render(w io.Writer, tty bool, rows [][]string, v any) error {
	if !tty {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func websiteRows(list []websites.Website) [][]string {
	rows := [][]string{{"ID", "NAME", "DOMAIN", "TRACKING CODE"}}
	for _, w := range list {
		rows = append(rows, []string{fmt.Sprint(w.ID), w.Name, w.Domain, w.TrackingCode})
	}
	return rows
}

func statsRows(s *analytics.VisitorStats) [][]string {
	rows := [][]string{
		{"METRIC", "VALUE"},
		{"visitors", fmt.Sprint(s.TotalVisitors)},
		{"active visitors", fmt.Sprint(s.ActiveVisitors)},
		{"pageviews", fmt.Sprint(s.TotalPageviews)},
		{"events", fmt.Sprint(s.TotalEvents)},
		{"avg visit duration (s)", fmt.Sprintf("%.1f", s.AvgVisitDuration)},
	}
	for _, c := range s.TopCountries {
		rows = append(rows, []string{"country: " + c.Name, fmt.Sprint(c.Count)})
	}
	for _, r := range s.TopReferrerSources {
		rows = append(rows, []string{"source: " + r.Name, fmt.Sprint(r.Count)})
	}
	return rows
}
