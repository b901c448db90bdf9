package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/store"
)

const registeredAtLayout = "2006-01-02 15:04:05"

// StudentsHandler handles the student registry endpoints.
type StudentsHandler struct {
	registry *roster.Registry
	store    store.Writer
}

// NewStudentsHandler creates a new students handler. The store may be
// nil; removal then leaves enrolled encodings untouched.
func NewStudentsHandler(registry *roster.Registry, st store.Writer) *StudentsHandler {
	return &StudentsHandler{
		registry: registry,
		store:    st,
	}
}

// StudentResponse represents a student in API responses.
type StudentResponse struct {
	Name         string `json:"name"`
	StudentID    string `json:"student_id"`
	RegisteredAt string `json:"registered_at"`
	Enrollments  int    `json:"enrollments"`
}

func (h *StudentsHandler) studentToResponse(r *http.Request, s roster.Student) StudentResponse {
	resp := StudentResponse{
		Name:         s.Name,
		StudentID:    s.StudentID,
		RegisteredAt: s.RegisteredAt.Format(registeredAtLayout),
	}
	if h.store != nil {
		encs, err := h.store.GetByLabel(r.Context(), s.Name)
		if err == nil {
			resp.Enrollments = len(encs)
		}
	}
	return resp
}

// List returns all registered students.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	students := h.registry.List()

	response := make([]StudentResponse, len(students))
	for i, s := range students {
		response[i] = h.studentToResponse(r, s)
	}

	respondJSON(w, http.StatusOK, response)
}

// RegisterRequest represents a student registration request.
type RegisterRequest struct {
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
}

// Register adds a student to the registry.
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	student, err := h.registry.Register(req.Name, req.StudentID)
	if err != nil {
		if errors.Is(err, roster.ErrDuplicateStudent) {
			respondError(w, http.StatusConflict, "student already registered")
			return
		}
		log.Printf("Failed to register student %s: %v", sanitizeForLog(req.Name), err)
		respondError(w, http.StatusInternalServerError, "failed to register student")
		return
	}

	respondJSON(w, http.StatusCreated, h.studentToResponse(r, student))
}

// Get returns a single student by name.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student name")
		return
	}

	student, ok := h.registry.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}

	respondJSON(w, http.StatusOK, h.studentToResponse(r, student))
}

// Remove deletes a student and their enrolled encodings.
func (h *StudentsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student name")
		return
	}

	student, ok := h.registry.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}

	if err := h.registry.Remove(name); err != nil {
		log.Printf("Failed to remove student %s: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, "failed to remove student")
		return
	}

	removed := 0
	if h.store != nil {
		removed, err = h.store.DeleteByLabel(r.Context(), student.Name)
		if err != nil {
			log.Printf("Failed to delete encodings for %s: %v", sanitizeForLog(name), err)
			respondError(w, http.StatusInternalServerError, "failed to delete encodings")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"name":               student.Name,
		"removed_encodings":  removed,
		"removed_from_roster": true,
	})
}
