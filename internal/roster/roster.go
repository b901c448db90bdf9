// Package roster keeps the student registry. The registry is a small CSV
// file (name, student_id, registration_date) living next to the
// attendance log.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/names"
)

// ErrDuplicateStudent is returned when registering a name that already exists.
var ErrDuplicateStudent = errors.New("student already registered")

// ErrStudentNotFound is returned when removing an unknown student.
var ErrStudentNotFound = errors.New("student not found")

const timeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"name", "student_id", "registration_date"}

// Student is one row of the registry.
type Student struct {
	Name         string
	StudentID    string
	RegisteredAt time.Time
}

// Registry is a CSV-backed student registry. The file is created with a
// header on first use and rewritten in full on every mutation; rosters
// are small enough that this costs nothing.
type Registry struct {
	path     string
	mu       sync.RWMutex
	students []Student
}

// Open loads the registry, creating an empty file if none exists.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := r.flush(); err != nil {
			return nil, err
		}
		return r, nil
	}

	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open students file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse students file: %w", err)
	}

	for i, record := range records {
		if i == 0 {
			continue // header
		}
		if len(record) < 3 {
			continue
		}
		registeredAt, err := time.Parse(timeLayout, record[2])
		if err != nil {
			registeredAt = time.Time{}
		}
		r.students = append(r.students, Student{
			Name:         record[0],
			StudentID:    record[1],
			RegisteredAt: registeredAt,
		})
	}
	return nil
}

func (r *Registry) flush() error {
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("failed to write students file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range r.students {
		record := []string{s.Name, s.StudentID, s.RegisteredAt.Format(timeLayout)}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write student row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush students file: %w", err)
	}
	return nil
}

// Register adds a student. An empty student ID gets a generated uuid.
// Names are compared normalized, so "Jiří Novák" and "jiri-novak"
// count as the same student.
func (r *Registry) Register(name, studentID string) (Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := names.Normalize(name)
	for _, s := range r.students {
		if names.Normalize(s.Name) == key {
			return Student{}, fmt.Errorf("%w: %s", ErrDuplicateStudent, s.Name)
		}
	}

	if studentID == "" {
		studentID = uuid.NewString()
	}

	student := Student{
		Name:         name,
		StudentID:    studentID,
		RegisteredAt: time.Now(),
	}
	r.students = append(r.students, student)

	if err := r.flush(); err != nil {
		return Student{}, err
	}
	return student, nil
}

// Remove deletes a student by name (normalized comparison).
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := names.Normalize(name)
	for i, s := range r.students {
		if names.Normalize(s.Name) == key {
			r.students = append(r.students[:i], r.students[i+1:]...)
			return r.flush()
		}
	}
	return fmt.Errorf("%w: %s", ErrStudentNotFound, name)
}

// Get returns the student with the given name (normalized comparison).
func (r *Registry) Get(name string) (Student, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := names.Normalize(name)
	for _, s := range r.students {
		if names.Normalize(s.Name) == key {
			return s, true
		}
	}
	return Student{}, false
}

// List returns all registered students in registration order.
func (r *Registry) List() []Student {
	r.mu.RLock()
	defer r.mu.RUnlock()

	students := make([]Student, len(r.students))
	copy(students, r.students)
	return students
}

// Count returns the number of registered students.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students)
}
