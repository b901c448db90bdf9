package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/store"
)

// StatsHandler exposes enrollment and attendance counters.
type StatsHandler struct {
	store    store.Reader
	registry *roster.Registry
	log      *attendance.Log
	now      func() time.Time
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(st store.Reader, registry *roster.Registry, alog *attendance.Log) *StatsHandler {
	return &StatsHandler{
		store:    st,
		registry: registry,
		log:      alog,
		now:      time.Now,
	}
}

// StatsResponse represents system-level counters.
type StatsResponse struct {
	RegisteredStudents int `json:"registered_students"`
	EnrolledEncodings  int `json:"enrolled_encodings"`
	PresentToday       int `json:"present_today"`
	TotalRecords       int `json:"total_records"`
}

// Get returns system-level counters.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	encodings, err := h.store.Count(r.Context())
	if err != nil {
		log.Printf("Failed to count encodings: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to count encodings")
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		RegisteredStudents: h.registry.Count(),
		EnrolledEncodings:  encodings,
		PresentToday:       len(h.log.Today(h.now())),
		TotalRecords:       len(h.log.Rows()),
	})
}
