package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStudentsList(t *testing.T) {
	registry := testRegistry(t, "Alice Smith", "Bob Jones")
	st := testStore(t, "Alice Smith")
	h := NewStudentsHandler(registry, st)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var students []StudentResponse
	decodeJSON(t, w.Body, &students)
	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(students))
	}
	if students[0].Name != "Alice Smith" || students[0].Enrollments != 1 {
		t.Errorf("unexpected first student: %+v", students[0])
	}
	if students[1].Enrollments != 0 {
		t.Errorf("Bob should have no enrollments: %+v", students[1])
	}
}

func TestStudentsRegister(t *testing.T) {
	registry := testRegistry(t)
	h := NewStudentsHandler(registry, testStore(t))

	body := strings.NewReader(`{"name": "Carol Brown", "student_id": "S-3000"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/students", body)
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var student StudentResponse
	decodeJSON(t, w.Body, &student)
	if student.Name != "Carol Brown" || student.StudentID != "S-3000" {
		t.Errorf("unexpected student: %+v", student)
	}
	if registry.Count() != 1 {
		t.Errorf("registry should have 1 student, got %d", registry.Count())
	}
}

func TestStudentsRegisterValidation(t *testing.T) {
	h := NewStudentsHandler(testRegistry(t), testStore(t))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{not json`, http.StatusBadRequest},
		{"missing name", `{"student_id": "S-1000"}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/students", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			h.Register(w, req)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestStudentsRegisterDuplicate(t *testing.T) {
	registry := testRegistry(t, "Alice Smith")
	h := NewStudentsHandler(registry, testStore(t))

	// Same person under a slug spelling.
	body := strings.NewReader(`{"name": "alice-smith"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/students", body)
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestStudentsGet(t *testing.T) {
	registry := testRegistry(t, "Alice Smith")
	h := NewStudentsHandler(registry, testStore(t, "Alice Smith"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/Alice%20Smith", nil)
	req = requestWithChiParams(req, map[string]string{"name": "Alice Smith"})
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var student StudentResponse
	decodeJSON(t, w.Body, &student)
	if student.Name != "Alice Smith" || student.Enrollments != 1 {
		t.Errorf("unexpected student: %+v", student)
	}
}

func TestStudentsGetNotFound(t *testing.T) {
	h := NewStudentsHandler(testRegistry(t), testStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/Nobody", nil)
	req = requestWithChiParams(req, map[string]string{"name": "Nobody"})
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStudentsRemove(t *testing.T) {
	registry := testRegistry(t, "Alice Smith")
	st := testStore(t, "Alice Smith")
	h := NewStudentsHandler(registry, st)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/students/Alice%20Smith", nil)
	req = requestWithChiParams(req, map[string]string{"name": "Alice Smith"})
	w := httptest.NewRecorder()
	h.Remove(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if registry.Count() != 0 {
		t.Error("student should be removed from registry")
	}
	count, err := st.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("encodings should be deleted, %d left", count)
	}
}

func TestStudentsRemove_DeletesFileNameLabels(t *testing.T) {
	// Enrollment from a directory stores the label "jan novak" while the
	// registry carries the display name "Jan Novák". Removing the student
	// must still clear the encodings.
	registry := testRegistry(t, "Jan Novák")
	st := testStore(t, "jan novak")
	h := NewStudentsHandler(registry, st)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/students/Jan%20Nov%C3%A1k", nil)
	req = requestWithChiParams(req, map[string]string{"name": "Jan Novák"})
	w := httptest.NewRecorder()
	h.Remove(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	count, err := st.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("encodings should be deleted, %d left", count)
	}
}
