package enroll

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/store"
)

// fakeEncoderServer returns face responses keyed by the uploaded image
// payload. "noface" detects nothing, "twofaces" detects two faces with
// distinct scores, anything else detects exactly one face.
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
		switch {
		case strings.Contains(string(payload), "noface"):
			// nothing detected
		case strings.Contains(string(payload), "twofaces"):
			resp.Faces = []encoder.Face{
				{FaceIndex: 0, Dim: 4, Embedding: []float32{1, 0, 0, 0}, DetScore: 0.61},
				{FaceIndex: 1, Dim: 4, Embedding: []float32{0, 1, 0, 0}, DetScore: 0.93},
			}
		default:
			resp.Faces = []encoder.Face{
				{FaceIndex: 0, Dim: 4, Embedding: []float32{0, 0, 1, 0}, DetScore: 0.88},
			}
		}
		resp.FacesCount = len(resp.Faces)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestEnroller(t *testing.T, serverURL string, opts Options) (*Enroller, *store.FileStore) {
	t.Helper()
	st, err := store.CreateFile(filepath.Join(t.TempDir(), "rollcall.db"))
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	return New(encoder.NewClient(serverURL), st, opts), st
}

func writeImage(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"faces", "faces/jan_novak.jpg", "jan novak"},
		{"faces", "faces/Alice-Smith.png", "Alice Smith"},
		{"faces", "faces/Bob Jones/img_001.jpg", "Bob Jones"},
		{"faces", "faces/carol_b/photo.jpg", "carol b"},
	}

	for _, tc := range tests {
		if got := LabelFor(tc.root, tc.path); got != tc.want {
			t.Errorf("LabelFor(%q, %q) = %q, want %q", tc.root, tc.path, got, tc.want)
		}
	}
}

func TestEnrollDirectory(t *testing.T) {
	server := fakeEncoderServer(t)
	defer server.Close()

	dir := t.TempDir()
	writeImage(t, dir, "alice_smith.jpg", "face alice")
	writeImage(t, dir, "bob_jones.jpg", "face bob")
	writeImage(t, dir, "empty_wall.jpg", "noface")
	writeImage(t, dir, "group_photo.jpg", "twofaces")
	writeImage(t, dir, "notes.txt", "not an image")

	enroller, st := newTestEnroller(t, server.URL, Options{Concurrency: 2})
	summary, results, err := enroller.EnrollDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("EnrollDirectory failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if summary.Enrolled != 2 || summary.NoFace != 1 || summary.MultiFace != 1 || summary.Failed != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	count, err := st.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 stored encodings, got %d", count)
	}

	encs, err := st.GetByLabel(context.Background(), "alice smith")
	if err != nil {
		t.Fatal(err)
	}
	if len(encs) != 1 {
		t.Fatalf("expected 1 encoding for alice smith, got %d", len(encs))
	}
	if encs[0].Model != "buffalo_l" || encs[0].Dim != 4 {
		t.Errorf("unexpected encoding metadata: model=%q dim=%d", encs[0].Model, encs[0].Dim)
	}
}

func TestEnrollImage_RejectsDimensionMismatch(t *testing.T) {
	server := fakeEncoderServer(t)
	defer server.Close()

	dir := t.TempDir()
	writeImage(t, dir, "alice_smith.jpg", "face alice")

	// Expecting 512-dimensional embeddings but the encoder returns 4,
	// as if it were running a different model.
	enroller, st := newTestEnroller(t, server.URL, Options{ExpectedDim: 512})
	res := enroller.EnrollImage(context.Background(), filepath.Join(dir, "alice_smith.jpg"), "alice smith")

	if res.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", res.Status)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "expected 512") {
		t.Errorf("unexpected error: %v", res.Err)
	}

	count, err := st.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("mismatched encoding must not be stored, got %d", count)
	}
}

func TestEnrollDirectory_BestFace(t *testing.T) {
	server := fakeEncoderServer(t)
	defer server.Close()

	dir := t.TempDir()
	writeImage(t, dir, "group_photo.jpg", "twofaces")

	enroller, st := newTestEnroller(t, server.URL, Options{BestFace: true})
	summary, _, err := enroller.EnrollDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("EnrollDirectory failed: %v", err)
	}
	if summary.Enrolled != 1 || summary.MultiFace != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	encs, err := st.GetByLabel(context.Background(), "group photo")
	if err != nil {
		t.Fatal(err)
	}
	if len(encs) != 1 {
		t.Fatalf("expected 1 encoding, got %d", len(encs))
	}
	// Must be the higher-scoring detection.
	if encs[0].Embedding[1] != 1 {
		t.Errorf("wrong face selected: %v", encs[0].Embedding)
	}
}

func TestEnrollDirectory_SubdirectoryLabels(t *testing.T) {
	server := fakeEncoderServer(t)
	defer server.Close()

	dir := t.TempDir()
	writeImage(t, dir, filepath.Join("Alice Smith", "img_1.jpg"), "face a1")
	writeImage(t, dir, filepath.Join("Alice Smith", "img_2.jpg"), "face a2")

	enroller, st := newTestEnroller(t, server.URL, Options{})
	summary, _, err := enroller.EnrollDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("EnrollDirectory failed: %v", err)
	}
	if summary.Enrolled != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	encs, err := st.GetByLabel(context.Background(), "Alice Smith")
	if err != nil {
		t.Fatal(err)
	}
	if len(encs) != 2 {
		t.Errorf("expected 2 encodings for Alice Smith, got %d", len(encs))
	}
}

func TestEnrollDirectory_ResolvesStudentIDs(t *testing.T) {
	server := fakeEncoderServer(t)
	defer server.Close()

	dir := t.TempDir()
	writeImage(t, dir, "alice_smith.jpg", "face alice")

	enroller, st := newTestEnroller(t, server.URL, Options{
		ResolveStudentID: func(label string) string {
			if label == "alice smith" {
				return "S-1001"
			}
			return ""
		},
	})
	if _, _, err := enroller.EnrollDirectory(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	encs, err := st.GetByLabel(context.Background(), "alice smith")
	if err != nil {
		t.Fatal(err)
	}
	if len(encs) != 1 || encs[0].StudentID != "S-1001" {
		t.Errorf("student ID not attached: %+v", encs)
	}
}

func TestEnrollDirectory_OnResultCallback(t *testing.T) {
	server := fakeEncoderServer(t)
	defer server.Close()

	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", "face alice")
	writeImage(t, dir, "bob.jpg", "face bob")

	var mu sync.Mutex
	var calls int
	enroller, _ := newTestEnroller(t, server.URL, Options{
		OnResult: func(Result) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})
	if _, _, err := enroller.EnrollDirectory(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected 2 callbacks, got %d", calls)
	}
}

func TestEnrollDirectory_EmptyDirectory(t *testing.T) {
	server := fakeEncoderServer(t)
	defer server.Close()

	enroller, _ := newTestEnroller(t, server.URL, Options{})
	if _, _, err := enroller.EnrollDirectory(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestEnrollDirectory_EncoderDown(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "alice.jpg", "face alice")

	enroller, _ := newTestEnroller(t, "http://127.0.0.1:1", Options{})
	summary, results, err := enroller.EnrollDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("EnrollDirectory failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if results[0].Err == nil {
		t.Error("expected per-image error")
	}
}
