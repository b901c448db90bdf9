package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

const dateLayout = "2006-01-02"

// ReportsHandler builds attendance reports over a date range.
type ReportsHandler struct {
	log *attendance.Log
	now func() time.Time
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(alog *attendance.Log) *ReportsHandler {
	return &ReportsHandler{
		log: alog,
		now: time.Now,
	}
}

// SummaryResponse represents per-student presence counts.
type SummaryResponse struct {
	Name        string `json:"name"`
	StudentID   string `json:"student_id"`
	DaysPresent int    `json:"days_present"`
}

// ReportResponse represents a date-range attendance report.
type ReportResponse struct {
	From           string            `json:"from"`
	To             string            `json:"to"`
	TotalRecords   int               `json:"total_records"`
	UniqueStudents int               `json:"unique_students"`
	DaysCovered    int               `json:"days_covered"`
	Summary        []SummaryResponse `json:"summary"`
	Records        []RowResponse     `json:"records"`
}

// parseRange reads from/to query parameters. Defaults cover the last
// 30 days up to today.
func (h *ReportsHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := h.now()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %s", v)
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %s", v)
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date precedes from date")
	}
	return from, to, nil
}

// Range returns the attendance report for a date range. With
// format=csv the report is returned as a CSV download.
func (h *ReportsHandler) Range(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	report := attendance.BuildReport(h.log.Rows(), from, to)

	if r.URL.Query().Get("format") == "csv" {
		data, err := report.CSV()
		if err != nil {
			log.Printf("Failed to render report CSV: %v", err)
			respondError(w, http.StatusInternalServerError, "failed to render report")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="attendance_%s_%s.csv"`,
				from.Format(dateLayout), to.Format(dateLayout)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	summary := make([]SummaryResponse, len(report.Summary))
	for i, s := range report.Summary {
		summary[i] = SummaryResponse{
			Name:        s.Name,
			StudentID:   s.StudentID,
			DaysPresent: s.DaysPresent,
		}
	}

	respondJSON(w, http.StatusOK, ReportResponse{
		From:           from.Format(dateLayout),
		To:             to.Format(dateLayout),
		TotalRecords:   report.TotalRecords,
		UniqueStudents: report.UniqueStudents,
		DaysCovered:    report.DaysCovered,
		Summary:        summary,
		Records:        rowsToResponse(report.Rows),
	})
}
