package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// TimelineEntry is one row of an application's audit trail prepared for export.
type TimelineEntry struct {
	Status    string
	Comment   string
	ActorID   string
	Timestamp time.Time
}

// Timeline bundles the exportable view of a single application.
type Timeline struct {
	TrackingCode string
	Department   string
	Entries      []TimelineEntry
}

var timelineHeaders = []string{"Timestamp", "Status", "Actor", "Comment"}

// RenderCSV encodes the timeline as CSV bytes.
func RenderCSV(tl Timeline) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(timelineHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, entry := range tl.Entries {
		record := []string{
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.Status,
			entry.ActorID,
			entry.Comment,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPDF produces a tabular PDF of the timeline with the tracking code
// as the document title.
func RenderPDF(tl Timeline) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("Application %s", tl.TrackingCode), "", 1, "C", false, 0, "")
	if tl.Department != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 8, tl.Department, "", 1, "C", false, 0, "")
	}
	pdf.Ln(5)

	widths := []float64{45, 45, 40, 60}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range timelineHeaders {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, entry := range tl.Entries {
		cells := []string{
			entry.Timestamp.UTC().Format("2006-01-02 15:04"),
			entry.Status,
			entry.ActorID,
			entry.Comment,
		}
		for i, value := range cells {
			pdf.CellFormat(widths[i], 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
