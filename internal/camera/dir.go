package camera

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirSource delivers image files dropped into a directory. Each file is
// emitted once, in name order; the directory is re-polled until the
// context is cancelled. With Once set the source stops after the first
// pass, which turns a folder of stills into a finite frame feed.
type DirSource struct {
	dir  string
	poll time.Duration
	once bool

	mu   sync.Mutex
	err  error
	seen map[string]bool
}

// NewDirSource creates a polling directory source.
func NewDirSource(dir string, poll time.Duration) *DirSource {
	if poll <= 0 {
		poll = time.Second
	}
	return &DirSource{dir: dir, poll: poll, seen: make(map[string]bool)}
}

// NewDirSourceOnce creates a source that emits the directory's current
// contents and stops.
func NewDirSourceOnce(dir string) *DirSource {
	return &DirSource{dir: dir, poll: time.Second, once: true, seen: make(map[string]bool)}
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// Stream starts delivering frames from the directory.
func (s *DirSource) Stream(ctx context.Context) (<-chan Frame, error) {
	if info, err := os.Stat(s.dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("frame directory not accessible: %s", s.dir)
	}

	frames := make(chan Frame)

	go func() {
		defer close(frames)

		seq := 0
		for {
			entries, err := os.ReadDir(s.dir)
			if err != nil {
				s.setErr(fmt.Errorf("reading frame directory: %w", err))
				return
			}

			var pending []string
			for _, e := range entries {
				if e.IsDir() || !isImageFile(e.Name()) {
					continue
				}
				path := filepath.Join(s.dir, e.Name())
				if !s.markSeen(path) {
					pending = append(pending, path)
				}
			}
			sort.Strings(pending)

			for _, path := range pending {
				data, err := os.ReadFile(path)
				if err != nil {
					// File may have been removed mid-poll.
					log.Printf("Warning: skipping unreadable frame %s: %v", path, err)
					continue
				}
				seq++
				select {
				case frames <- Frame{Data: data, Seq: seq, Origin: path}:
				case <-ctx.Done():
					return
				}
			}

			if s.once {
				return
			}

			select {
			case <-time.After(s.poll):
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

// markSeen records a path, returning true if it was already seen.
func (s *DirSource) markSeen(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[path] {
		return true
	}
	s.seen[path] = true
	return false
}

func (s *DirSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the terminal stream error, if any.
func (s *DirSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
