package attendance

import (
	"strings"
	"testing"
	"time"
)

func reportRows() []Row {
	return []Row{
		{Name: "Alice", StudentID: "s-1", Date: "2025-03-09", Time: "09:00:00", Status: StatusPresent},
		{Name: "Alice", StudentID: "s-1", Date: "2025-03-10", Time: "09:01:00", Status: StatusPresent},
		{Name: "Bob", StudentID: "s-2", Date: "2025-03-10", Time: "09:05:00", Status: StatusPresent},
		{Name: "Alice", StudentID: "s-1", Date: "2025-03-12", Time: "09:00:00", Status: StatusPresent},
		{Name: "Carol", StudentID: "s-3", Date: "bad-date", Time: "09:00:00", Status: StatusPresent},
	}
}

func date(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad test date %q: %v", value, err)
	}
	return parsed
}

func TestBuildReport_Range(t *testing.T) {
	report := BuildReport(reportRows(), date(t, "2025-03-10"), date(t, "2025-03-12"))

	if report.TotalRecords != 3 {
		t.Errorf("expected 3 records, got %d", report.TotalRecords)
	}
	if report.UniqueStudents != 2 {
		t.Errorf("expected 2 unique students, got %d", report.UniqueStudents)
	}
	if report.DaysCovered != 2 {
		t.Errorf("expected 2 days covered, got %d", report.DaysCovered)
	}
}

func TestBuildReport_Summary(t *testing.T) {
	report := BuildReport(reportRows(), date(t, "2025-03-09"), date(t, "2025-03-12"))

	if len(report.Summary) != 2 {
		t.Fatalf("expected summaries for 2 students, got %d", len(report.Summary))
	}
	// Sorted by name.
	if report.Summary[0].Name != "Alice" || report.Summary[0].DaysPresent != 3 {
		t.Errorf("unexpected Alice summary: %+v", report.Summary[0])
	}
	if report.Summary[1].Name != "Bob" || report.Summary[1].DaysPresent != 1 {
		t.Errorf("unexpected Bob summary: %+v", report.Summary[1])
	}
}

func TestBuildReport_SingleDay(t *testing.T) {
	report := BuildReport(reportRows(), date(t, "2025-03-10"), date(t, "2025-03-10"))

	if report.TotalRecords != 2 {
		t.Errorf("expected 2 records for single day, got %d", report.TotalRecords)
	}
	if report.DaysCovered != 1 {
		t.Errorf("expected 1 day covered, got %d", report.DaysCovered)
	}
}

func TestBuildReport_EmptyRange(t *testing.T) {
	report := BuildReport(reportRows(), date(t, "2024-01-01"), date(t, "2024-01-31"))

	if report.TotalRecords != 0 {
		t.Errorf("expected 0 records, got %d", report.TotalRecords)
	}
	if len(report.Summary) != 0 {
		t.Errorf("expected empty summary, got %+v", report.Summary)
	}
}

func TestBuildReport_SkipsBadDates(t *testing.T) {
	report := BuildReport(reportRows(), date(t, "2025-01-01"), date(t, "2025-12-31"))

	for _, row := range report.Rows {
		if row.Name == "Carol" {
			t.Error("row with unparseable date should be skipped")
		}
	}
}

func TestReportCSV(t *testing.T) {
	report := BuildReport(reportRows(), date(t, "2025-03-10"), date(t, "2025-03-10"))

	data, err := report.CSV()
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 { // header + 2 rows
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), string(data))
	}
	if lines[0] != "name,student_id,date,time,status" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Alice,") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
}
