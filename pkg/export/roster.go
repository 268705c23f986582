// Package export renders printable documents for the registration API.
package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
)

// RosterExporter renders course rosters into a tabular PDF.
type RosterExporter struct{}

// NewRosterExporter constructs a roster exporter.
func NewRosterExporter() *RosterExporter {
	return &RosterExporter{}
}

var rosterColumns = []struct {
	header string
	width  float64
}{
	{"#", 10},
	{"Student No", 30},
	{"Name", 55},
	{"Major", 40},
	{"Status", 30},
	{"Grade", 25},
}

// Render creates the roster PDF for a course.
func (e *RosterExporter) Render(roster *models.CourseRoster) ([]byte, error) {
	if roster == nil {
		return nil, fmt.Errorf("pdf requires a roster")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, fmt.Sprintf("%s - %s", roster.Course.Code, roster.Course.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Seats: %d/%d", roster.Course.Enrolled, roster.Course.Capacity), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 10)
	for _, col := range rosterColumns {
		pdf.CellFormat(col.width, 8, col.header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i, entry := range roster.Entries {
		grade := "-"
		if entry.Enrollment.Grade != nil {
			grade = fmt.Sprintf("%.1f (%s)", *entry.Enrollment.Grade, entry.Enrollment.GradeLetter())
		}
		cells := []string{
			fmt.Sprintf("%d", i+1),
			entry.Student.StudentNo,
			entry.Student.FullName,
			entry.Student.Major,
			string(entry.Enrollment.Status),
			grade,
		}
		for j, value := range cells {
			pdf.CellFormat(rosterColumns[j].width, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render roster pdf: %w", err)
	}
	return buf.Bytes(), nil
}
