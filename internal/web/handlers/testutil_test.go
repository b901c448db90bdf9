package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/session"
	"github.com/kozaktomas/rollcall/internal/store"
)

// testClock is a fixed Monday morning timestamp.
func testClock(t *testing.T) func() time.Time {
	t.Helper()
	now, err := time.Parse("2006-01-02 15:04:05", "2026-03-02 09:15:00")
	if err != nil {
		t.Fatal(err)
	}
	return func() time.Time { return now }
}

// testRegistry creates a registry pre-loaded with the given students.
func testRegistry(t *testing.T, names ...string) *roster.Registry {
	t.Helper()
	registry, err := roster.Open(filepath.Join(t.TempDir(), "students.csv"))
	if err != nil {
		t.Fatalf("could not open registry: %v", err)
	}
	for i, name := range names {
		if _, err := registry.Register(name, studentID(i)); err != nil {
			t.Fatalf("could not register %s: %v", name, err)
		}
	}
	return registry
}

func studentID(i int) string {
	return "S-" + string(rune('1'+i)) + "000"
}

// testLog creates an empty attendance log.
func testLog(t *testing.T) *attendance.Log {
	t.Helper()
	alog, err := attendance.Open(filepath.Join(t.TempDir(), "attendance.csv"))
	if err != nil {
		t.Fatalf("could not open attendance log: %v", err)
	}
	return alog
}

// testStore creates an encoding store pre-loaded with one encoding per label.
func testStore(t *testing.T, labels ...string) *store.FileStore {
	t.Helper()
	st, err := store.CreateFile(filepath.Join(t.TempDir(), "rollcall.db"))
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	for i, label := range labels {
		enc := store.Encoding{
			Label:      label,
			Embedding:  unitVec(i),
			Model:      "buffalo_l",
			Dim:        4,
			SourcePath: label + ".jpg",
		}
		if err := st.Save(context.Background(), []store.Encoding{enc}); err != nil {
			t.Fatalf("could not save encoding: %v", err)
		}
	}
	return st
}

func unitVec(axis int) []float32 {
	v := make([]float32, 4)
	v[axis%4] = 1
	return v
}

// fakeEncoderServer detects one face for payloads containing "face:N"
// where N selects the axis of the returned embedding.
func fakeEncoderServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		payload, _ := io.ReadAll(file)

		resp := encoder.FaceResponse{Model: "buffalo_l"}
		for axis := 0; axis < 4; axis++ {
			marker := "face:" + string(rune('0'+axis))
			if strings.Contains(string(payload), marker) {
				resp.Faces = append(resp.Faces, encoder.Face{
					FaceIndex: len(resp.Faces),
					Dim:       4,
					Embedding: unitVec(axis),
					DetScore:  0.9,
				})
			}
		}
		resp.FacesCount = len(resp.Faces)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

// testSession builds a session matching the testStore labels in axis order.
func testSession(t *testing.T, encoderURL string, st *store.FileStore, alog *attendance.Log) *session.Session {
	t.Helper()
	encodings, err := st.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	m := matcher.NewLinear(encodings, 0.5)
	return session.New(encoder.NewClient(encoderURL), m, alog, session.Options{Now: testClock(t)})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeJSON decodes a response body, failing the test on error.
func decodeJSON(t *testing.T, body io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}
}
