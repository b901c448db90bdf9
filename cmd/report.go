package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
)

const reportDateLayout = "2006-01-02"

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize attendance over a date range",
	Long: `Report filters the attendance log to a date range and prints a
per-student summary. The default range covers the last 30 days.
With --output the filtered records are exported as CSV.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("from", "", "Range start (YYYY-MM-DD, default 30 days ago)")
	reportCmd.Flags().String("to", "", "Range end (YYYY-MM-DD, default today)")
	reportCmd.Flags().String("output", "", "Write the filtered records to a CSV file")
}

func parseReportRange(cmd *cobra.Command) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := mustGetString(cmd, "from"); v != "" {
		parsed, err := time.Parse(reportDateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date: %s", v)
		}
		from = parsed
	}
	if v := mustGetString(cmd, "to"); v != "" {
		parsed, err := time.Parse(reportDateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date: %s", v)
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to precedes --from")
	}
	return from, to, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	from, to, err := parseReportRange(cmd)
	if err != nil {
		return err
	}

	alog, err := attendance.Open(cfg.Store.AttendanceCSV)
	if err != nil {
		return fmt.Errorf("opening attendance log: %w", err)
	}

	report := attendance.BuildReport(alog.Rows(), from, to)

	fmt.Printf("Attendance %s to %s\n", report.From, report.To)
	fmt.Printf("Records: %d, students: %d, days: %d\n\n",
		report.TotalRecords, report.UniqueStudents, report.DaysCovered)

	if len(report.Summary) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tID\tDAYS PRESENT")
		for _, s := range report.Summary {
			fmt.Fprintf(w, "%s\t%s\t%d\n", s.Name, s.StudentID, s.DaysPresent)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if output := mustGetString(cmd, "output"); output != "" {
		data, err := report.CSV()
		if err != nil {
			return fmt.Errorf("rendering report: %w", err)
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("\nExported %d records to %s\n", report.TotalRecords, output)
	}
	return nil
}
