package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/session"
)

// maxFrameSize limits uploaded frame size (32 MB).
const maxFrameSize = 32 << 20

// AttendanceHandler handles frame recognition and attendance queries.
type AttendanceHandler struct {
	session *session.Session
	log     *attendance.Log
	now     func() time.Time
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(sess *session.Session, alog *attendance.Log) *AttendanceHandler {
	return &AttendanceHandler{
		session: sess,
		log:     alog,
		now:     time.Now,
	}
}

// RecognizeResponse represents the outcome of processing one frame.
type RecognizeResponse struct {
	FacesCount   int                   `json:"faces_count"`
	Recognitions []session.Recognition `json:"recognitions"`
}

// Recognize accepts an image frame and marks attendance for every
// recognized face. The frame comes either as a multipart "file" field
// or as a raw request body.
func (h *AttendanceHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	frame, err := readFrame(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(frame) == 0 {
		respondError(w, http.StatusBadRequest, "empty frame")
		return
	}

	recognitions, err := h.session.ProcessFrame(r.Context(), frame)
	if err != nil {
		log.Printf("Frame recognition failed: %v", err)
		respondError(w, http.StatusBadGateway, "recognition failed")
		return
	}

	respondJSON(w, http.StatusOK, RecognizeResponse{
		FacesCount:   len(recognitions),
		Recognitions: recognitions,
	})
}

func readFrame(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxFrameSize)

	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		return io.ReadAll(file)
	}

	return io.ReadAll(r.Body)
}

// MarkRequest represents a manual attendance mark.
type MarkRequest struct {
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
}

// Mark marks a person present by hand, without a camera frame.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	marked, err := h.log.Mark(req.Name, req.StudentID, h.now())
	if err != nil {
		log.Printf("Failed to mark %s: %v", sanitizeForLog(req.Name), err)
		respondError(w, http.StatusInternalServerError, "failed to mark attendance")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"name":   req.Name,
		"marked": marked,
	})
}

// RowResponse represents one attendance record in API responses.
type RowResponse struct {
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Status    string `json:"status"`
}

func rowsToResponse(rows []attendance.Row) []RowResponse {
	response := make([]RowResponse, len(rows))
	for i, row := range rows {
		response[i] = RowResponse{
			Name:      row.Name,
			StudentID: row.StudentID,
			Date:      row.Date,
			Time:      row.Time,
			Status:    row.Status,
		}
	}
	return response
}

// Today returns everyone marked present today.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	rows := h.log.Today(h.now())
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    h.now().Format("2006-01-02"),
		"count":   len(rows),
		"present": rowsToResponse(rows),
	})
}
