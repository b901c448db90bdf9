package camera

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
)

// MJPEGSource reads frames from an MJPEG HTTP stream
// (multipart/x-mixed-replace), the transport most IP cameras speak.
type MJPEGSource struct {
	url    string
	client *http.Client

	mu  sync.Mutex
	err error
}

// NewMJPEGSource creates a source for the given stream URL.
func NewMJPEGSource(url string) *MJPEGSource {
	return &MJPEGSource{
		url:    url,
		client: &http.Client{},
	}
}

// Stream connects to the camera and starts delivering frames.
// Connection failure is returned immediately; mid-stream read errors
// end the stream and surface through Err.
func (s *MJPEGSource) Stream(ctx context.Context) (<-chan Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to camera: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("camera did not return an MJPEG stream (content type %q)", resp.Header.Get("Content-Type"))
	}

	frames := make(chan Frame)
	reader := multipart.NewReader(resp.Body, params["boundary"])

	go func() {
		defer close(frames)
		defer resp.Body.Close()

		seq := 0
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil {
				// Cancellation shows up as a read error on the body.
				if ctx.Err() == nil {
					s.setErr(fmt.Errorf("reading stream part: %w", err))
				}
				return
			}

			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				if ctx.Err() == nil {
					s.setErr(fmt.Errorf("reading frame data: %w", err))
				}
				return
			}

			seq++
			select {
			case frames <- Frame{Data: data, Seq: seq, Origin: s.url}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

func (s *MJPEGSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the terminal stream error, if any.
func (s *MJPEGSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
