// Package attendance maintains the append-only attendance CSV. The CSV
// is the sole source of truth: existing rows are loaded before any
// append, and at most one row exists per person per day.
package attendance

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/names"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"

	// StatusPresent is the only status the recognition loop writes.
	StatusPresent = "Present"
)

var csvHeader = []string{"name", "student_id", "date", "time", "status"}

// Row is one attendance record.
type Row struct {
	Name      string
	StudentID string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM:SS
	Status    string
}

// Log is the CSV-backed attendance logger. Rows are only ever appended;
// the (normalized name, date) set of existing rows guards against
// duplicates within and across runs.
type Log struct {
	path   string
	mu     sync.Mutex
	rows   []Row
	logged map[string]bool // normalized name + "_" + date
}

// Open loads the attendance log, creating the file with a header if
// it does not exist.
func Open(path string) (*Log, error) {
	l := &Log{path: path, logged: make(map[string]bool)}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create attendance file: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write attendance header: %w", err)
		}
		w.Flush()
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("closing attendance file: %w", err)
		}
		return l, nil
	}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) load() error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to open attendance file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse attendance file: %w", err)
	}

	for i, record := range records {
		if i == 0 {
			continue // header
		}
		if len(record) < 5 {
			continue
		}
		row := Row{
			Name:      record[0],
			StudentID: record[1],
			Date:      record[2],
			Time:      record[3],
			Status:    record[4],
		}
		l.rows = append(l.rows, row)
		l.logged[markKey(row.Name, row.Date)] = true
	}
	return nil
}

func markKey(name, date string) string {
	return names.Normalize(name) + "_" + date
}

// Mark appends a row for (name, today) unless one already exists.
// Returns true when a row was appended.
func (l *Log) Mark(name, studentID string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := now.Format(dateLayout)
	key := markKey(name, date)
	if l.logged[key] {
		return false, nil
	}

	row := Row{
		Name:      name,
		StudentID: studentID,
		Date:      date,
		Time:      now.Format(timeLayout),
		Status:    StatusPresent,
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open attendance file for append: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{row.Name, row.StudentID, row.Date, row.Time, row.Status}); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to append attendance row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to flush attendance row: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("closing attendance file: %w", err)
	}

	l.rows = append(l.rows, row)
	l.logged[key] = true
	return true, nil
}

// IsMarked reports whether a row exists for (name, date).
func (l *Log) IsMarked(name string, date time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logged[markKey(name, date.Format(dateLayout))]
}

// Today returns all rows for the given day.
func (l *Log) Today(now time.Time) []Row {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := now.Format(dateLayout)
	var rows []Row
	for _, row := range l.rows {
		if row.Date == date {
			rows = append(rows, row)
		}
	}
	return rows
}

// Rows returns a copy of all rows in file order.
func (l *Log) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := make([]Row, len(l.rows))
	copy(rows, l.rows)
	return rows
}
