package attendance

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"time"
)

// StudentSummary aggregates attendance per student over a date range.
type StudentSummary struct {
	Name        string
	StudentID   string
	DaysPresent int
}

// Report is the result of filtering the log over a date range.
type Report struct {
	From           string
	To             string
	Rows           []Row
	TotalRecords   int
	UniqueStudents int
	DaysCovered    int
	Summary        []StudentSummary
}

// BuildReport filters rows to the inclusive [from, to] range and computes
// per-student summaries. Rows with unparseable dates are skipped.
func BuildReport(rows []Row, from, to time.Time) Report {
	fromDate := from.Format(dateLayout)
	toDate := to.Format(dateLayout)

	report := Report{From: fromDate, To: toDate}

	students := make(map[string]*StudentSummary)
	dates := make(map[string]bool)

	for _, row := range rows {
		if _, err := time.Parse(dateLayout, row.Date); err != nil {
			continue
		}
		// Dates are ISO formatted, so string comparison is date comparison.
		if row.Date < fromDate || row.Date > toDate {
			continue
		}

		report.Rows = append(report.Rows, row)
		dates[row.Date] = true

		if s, ok := students[row.Name]; ok {
			s.DaysPresent++
		} else {
			students[row.Name] = &StudentSummary{
				Name:        row.Name,
				StudentID:   row.StudentID,
				DaysPresent: 1,
			}
		}
	}

	report.TotalRecords = len(report.Rows)
	report.UniqueStudents = len(students)
	report.DaysCovered = len(dates)

	for _, s := range students {
		report.Summary = append(report.Summary, *s)
	}
	sort.Slice(report.Summary, func(i, j int) bool {
		return report.Summary[i].Name < report.Summary[j].Name
	})

	return report
}

// CSV renders the filtered rows back to CSV for download/export.
func (r Report) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	for _, row := range r.Rows {
		if err := w.Write([]string{row.Name, row.StudentID, row.Date, row.Time, row.Status}); err != nil {
			return nil, fmt.Errorf("failed to write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush report: %w", err)
	}
	return buf.Bytes(), nil
}
