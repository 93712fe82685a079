package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/maximevalette/backups-reporter/internal/domain"
)

//go:embed report.html.tmpl
var htmlTemplate string

var reportTmpl = template.Must(template.New("report").Parse(htmlTemplate))

type htmlRow struct {
	Source      string
	SourceClass string
	Name        string
	Timestamp   string
	Size        string
	Kind        string
}

type failedSource struct {
	Source string
	Reason string
}

type htmlView struct {
	GeneratedAt   string
	RunID         string
	TotalEntries  int
	FailedSources []failedSource
	Rows          []htmlRow
}

// Subject returns the email subject line for a report
func Subject(r *domain.Report) string {
	return "Backups Report - " + r.GeneratedAt.Format("2006-01-02 15:04")
}

// RenderHTML renders the report as an HTML document. It is a pure
// function of the report: rendering the same report twice yields
// byte-identical output.
func RenderHTML(r *domain.Report) ([]byte, error) {
	view := htmlView{
		GeneratedAt:  r.GeneratedAt.Format("2006-01-02 15:04:05 UTC"),
		RunID:        r.RunID,
		TotalEntries: len(r.Entries),
	}

	for _, name := range r.FailedSources() {
		view.FailedSources = append(view.FailedSources, failedSource{
			Source: name,
			Reason: r.Statuses[name].Error(),
		})
	}

	for _, entry := range r.Entries {
		sourceClass := "s3"
		if strings.HasPrefix(entry.Source, "borg:") {
			sourceClass = "borg"
		}
		view.Rows = append(view.Rows, htmlRow{
			Source:      entry.Source,
			SourceClass: sourceClass,
			Name:        entry.Name,
			Timestamp:   entry.Timestamp.Format("2006-01-02 15:04:05"),
			Size:        FormatSize(entry.Size),
			Kind:        string(entry.Kind),
		})
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderTable writes the report as a console table
func RenderTable(w io.Writer, r *domain.Report) {
	fmt.Fprintf(w, "Generated on: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(w, "Total entries: %d (of %d collected)\n", len(r.Entries), r.TotalBeforeTruncation)

	for _, name := range r.FailedSources() {
		fmt.Fprintf(w, "FAILED %s: %v\n", name, r.Statuses[name])
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Source", "Name", "Timestamp (UTC)", "Size", "Type"})
	for _, entry := range r.Entries {
		table.Append([]string{
			entry.Source,
			entry.Name,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			FormatSize(entry.Size),
			string(entry.Kind),
		})
	}
	table.Render()
}

// FormatSize renders a byte count for display, "N/A" when unknown
func FormatSize(size *int64) string {
	if size == nil {
		return "N/A"
	}
	return humanize.IBytes(uint64(*size))
}
