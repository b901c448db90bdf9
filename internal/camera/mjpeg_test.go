package camera

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// serveMJPEG writes the given payloads as an MJPEG stream and closes.
func serveMJPEG(t *testing.T, payloads [][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const boundary = "frameboundary"
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
		w.WriteHeader(http.StatusOK)

		for _, payload := range payloads {
			fmt.Fprintf(w, "--%s\r\n", boundary)
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload))
			w.Write(payload)
			fmt.Fprint(w, "\r\n")
		}
		fmt.Fprintf(w, "--%s--\r\n", boundary)
	}))
}

func TestMJPEGSource_Stream(t *testing.T) {
	payloads := [][]byte{
		[]byte("frame-one"),
		[]byte("frame-two"),
		[]byte("frame-three"),
	}
	server := serveMJPEG(t, payloads)
	defer server.Close()

	source := NewMJPEGSource(server.URL)
	frames, err := source.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var received []Frame
	for frame := range frames {
		received = append(received, frame)
	}

	if err := source.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(received) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(received))
	}
	if string(received[0].Data) != "frame-one" {
		t.Errorf("unexpected first frame: %q", received[0].Data)
	}
	if received[2].Seq != 3 {
		t.Errorf("expected seq 3, got %d", received[2].Seq)
	}
}

func TestMJPEGSource_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const boundary = "frameboundary"
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)

		// Keep streaming until the client goes away.
		for i := 0; ; i++ {
			payload := []byte(fmt.Sprintf("frame-%d", i))
			fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", boundary)
			if _, err := w.Write(payload); err != nil {
				return
			}
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	source := NewMJPEGSource(server.URL)
	frames, err := source.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	// Read a couple of frames, then cancel.
	<-frames
	<-frames
	cancel()

	// Channel must close promptly after cancellation.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				if err := source.Err(); err != nil {
					t.Errorf("cancellation should not surface as stream error, got: %v", err)
				}
				return
			}
		case <-timeout:
			t.Fatal("frame channel did not close after cancellation")
		}
	}
}

func TestMJPEGSource_NotAStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not a camera</html>")
	}))
	defer server.Close()

	source := NewMJPEGSource(server.URL)
	_, err := source.Stream(context.Background())
	if err == nil {
		t.Fatal("expected error for non-MJPEG response")
	}
}

func TestMJPEGSource_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	source := NewMJPEGSource(server.URL)
	_, err := source.Stream(context.Background())
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestMJPEGSource_ConnectionRefused(t *testing.T) {
	source := NewMJPEGSource("http://127.0.0.1:1/stream")
	_, err := source.Stream(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable camera")
	}
}
