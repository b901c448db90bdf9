// Package enroll turns a directory of labeled face images into stored
// encodings. The person label comes from the image file name, or from
// the subdirectory name when images are grouped one folder per person.
package enroll

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/store"
)

// Status classifies the outcome of enrolling one image.
type Status string

const (
	StatusEnrolled  Status = "enrolled"
	StatusNoFace    Status = "no_face"
	StatusMultiFace Status = "multi_face"
	StatusFailed    Status = "failed"
)

// Result reports the outcome for a single image file.
type Result struct {
	Path       string
	Label      string
	Status     Status
	FacesFound int
	Err        error
}

// Summary aggregates results across an enrollment run.
type Summary struct {
	Enrolled  int
	NoFace    int
	MultiFace int
	Failed    int
}

// Options control an enrollment run.
type Options struct {
	// Concurrency bounds the number of in-flight encoder requests.
	Concurrency int
	// BestFace keeps the highest-scoring face from a multi-face image
	// instead of rejecting it.
	BestFace bool
	// MaxImageSize resizes larger images before upload. Zero disables
	// resizing.
	MaxImageSize int
	// ExpectedDim rejects encodings whose dimension differs, which
	// happens when the encoder runs a different model than the one the
	// store was enrolled with. Zero disables the check.
	ExpectedDim int
	// ResolveStudentID maps a label to a student ID, empty if unknown.
	ResolveStudentID func(label string) string
	// OnResult is called once per processed image, from multiple
	// goroutines. Optional.
	OnResult func(Result)
}

const defaultConcurrency = 4

// Enroller computes and stores encodings for enrollment images.
type Enroller struct {
	encoder *encoder.Client
	writer  store.Writer
	opts    Options
}

// New creates an enroller writing to the given store.
func New(client *encoder.Client, writer store.Writer, opts Options) *Enroller {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Enroller{encoder: client, writer: writer, opts: opts}
}

// ScanDirectory lists the enrollment images under dir, in name order.
// Images directly under dir are labeled by file name; images inside a
// subdirectory are labeled by the subdirectory name.
func ScanDirectory(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("enrollment directory not accessible: %s", dir)
	}

	var images []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isImageFile(path) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning enrollment directory: %w", err)
	}

	sort.Strings(images)
	return images, nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// LabelFor derives the person label for an enrollment image. File name
// separators become spaces so "jan_novak.jpg" enrolls as "jan novak".
func LabelFor(root, path string) string {
	parent := filepath.Dir(path)
	var raw string
	if parent != filepath.Clean(root) {
		raw = filepath.Base(parent)
	} else {
		base := filepath.Base(path)
		raw = strings.TrimSuffix(base, filepath.Ext(base))
	}
	raw = strings.ReplaceAll(raw, "_", " ")
	raw = strings.ReplaceAll(raw, "-", " ")
	return strings.Join(strings.Fields(raw), " ")
}

// EnrollDirectory processes every image under dir with bounded
// concurrency and stores the resulting encodings.
func (e *Enroller) EnrollDirectory(ctx context.Context, dir string) (Summary, []Result, error) {
	images, err := ScanDirectory(dir)
	if err != nil {
		return Summary{}, nil, err
	}
	if len(images) == 0 {
		return Summary{}, nil, fmt.Errorf("no images found in %s", dir)
	}

	results := make([]Result, len(images))

	sem := make(chan struct{}, e.opts.Concurrency)
	var wg sync.WaitGroup

	for i, path := range images {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := e.enrollImage(ctx, dir, path)
			results[i] = res
			if e.opts.OnResult != nil {
				e.opts.OnResult(res)
			}
		}(i, path)
	}

	wg.Wait()

	var summary Summary
	for _, res := range results {
		switch res.Status {
		case StatusEnrolled:
			summary.Enrolled++
		case StatusNoFace:
			summary.NoFace++
		case StatusMultiFace:
			summary.MultiFace++
		case StatusFailed:
			summary.Failed++
		}
	}

	return summary, results, nil
}

// EnrollImage enrolls a single image under the given label.
func (e *Enroller) EnrollImage(ctx context.Context, path, label string) Result {
	res := Result{Path: path, Label: label}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("reading image: %w", err)
		return res
	}

	if e.opts.MaxImageSize > 0 {
		resized, err := encoder.ResizeImage(data, e.opts.MaxImageSize)
		if err == nil {
			data = resized
		}
	}

	faceResp, err := e.encoder.ComputeFaceEncodings(ctx, data)
	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("computing encodings: %w", err)
		return res
	}

	res.FacesFound = faceResp.FacesCount

	face, status := pickFace(faceResp.Faces, e.opts.BestFace)
	if status != StatusEnrolled {
		res.Status = status
		return res
	}

	if e.opts.ExpectedDim > 0 && face.Dim != e.opts.ExpectedDim {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("encoder returned %d-dimensional embedding, expected %d", face.Dim, e.opts.ExpectedDim)
		return res
	}

	var studentID string
	if e.opts.ResolveStudentID != nil {
		studentID = e.opts.ResolveStudentID(label)
	}

	enc := store.Encoding{
		Label:      label,
		StudentID:  studentID,
		Embedding:  face.Embedding,
		Model:      faceResp.Model,
		Dim:        face.Dim,
		SourcePath: path,
	}
	if err := e.writer.Save(ctx, []store.Encoding{enc}); err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("saving encoding: %w", err)
		return res
	}

	res.Status = StatusEnrolled
	return res
}

func (e *Enroller) enrollImage(ctx context.Context, root, path string) Result {
	return e.EnrollImage(ctx, path, LabelFor(root, path))
}

// pickFace applies the single-face enrollment policy. Images without a
// face are skipped; images with several faces are rejected unless
// bestFace is set, in which case the highest-scoring detection wins.
func pickFace(faces []encoder.Face, bestFace bool) (encoder.Face, Status) {
	switch {
	case len(faces) == 0:
		return encoder.Face{}, StatusNoFace
	case len(faces) == 1:
		return faces[0], StatusEnrolled
	case !bestFace:
		return encoder.Face{}, StatusMultiFace
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.DetScore > best.DetScore {
			best = f
		}
	}
	return best, StatusEnrolled
}
