// Package session runs the recognition loop: frames come in from a
// camera source, every Nth frame is sent to the encoder, detected
// faces are matched against the enrolled set and matches are marked
// in the attendance log. A day's attendance is idempotent, so the
// loop can run unattended for a whole class period.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

// UnknownLabel is reported for faces that match no enrolled person.
const UnknownLabel = "Unknown"

// Recognition is the outcome for one detected face in one frame.
type Recognition struct {
	FrameSeq  int     `json:"frame_seq"`
	Origin    string  `json:"origin,omitempty"`
	FaceIndex int     `json:"face_index"`
	Label     string  `json:"label"`
	StudentID string  `json:"student_id,omitempty"`
	Distance  float64 `json:"distance"`
	Matched   bool    `json:"matched"`
	// Marked is true when this recognition added a new attendance row,
	// false for unknowns and for people already marked today.
	Marked bool `json:"marked"`
}

// Options control a recognition session.
type Options struct {
	// SampleInterval processes every Nth frame of the stream. Values
	// below 1 process every frame.
	SampleInterval int
	// MaxImageSize resizes larger frames before upload. Zero disables
	// resizing.
	MaxImageSize int
	// Now supplies timestamps for attendance rows. Defaults to
	// time.Now.
	Now func() time.Time
	// OnRecognition is called for every detected face. Optional.
	OnRecognition func(Recognition)
}

// Session matches camera frames against enrolled encodings and records
// attendance.
type Session struct {
	encoder *encoder.Client
	matcher matcher.Matcher
	log     *attendance.Log
	opts    Options
}

// New creates a recognition session.
func New(client *encoder.Client, m matcher.Matcher, log *attendance.Log, opts Options) *Session {
	if opts.SampleInterval < 1 {
		opts.SampleInterval = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{encoder: client, matcher: m, log: log, opts: opts}
}

// Run consumes the source until the stream ends or the context is
// cancelled. Frames that fail to encode are skipped; a camera that can
// drop a frame should not take the session down with it.
func (s *Session) Run(ctx context.Context, source camera.Source) error {
	frames, err := source.Stream(ctx)
	if err != nil {
		return fmt.Errorf("starting frame stream: %w", err)
	}

	for frame := range frames {
		if (frame.Seq-1)%s.opts.SampleInterval != 0 {
			continue
		}

		recognitions, err := s.ProcessFrame(ctx, frame.Data)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Warning: skipping frame %d: %v", frame.Seq, err)
			continue
		}

		if s.opts.OnRecognition != nil {
			for _, rec := range recognitions {
				rec.FrameSeq = frame.Seq
				rec.Origin = frame.Origin
				s.opts.OnRecognition(rec)
			}
		}
	}

	if err := source.Err(); err != nil {
		return fmt.Errorf("frame stream failed: %w", err)
	}
	return ctx.Err()
}

// ProcessFrame encodes one frame and returns a recognition per
// detected face, marking attendance for matched faces.
func (s *Session) ProcessFrame(ctx context.Context, data []byte) ([]Recognition, error) {
	if s.opts.MaxImageSize > 0 {
		if resized, err := encoder.ResizeImage(data, s.opts.MaxImageSize); err == nil {
			data = resized
		}
	}

	faceResp, err := s.encoder.ComputeFaceEncodings(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("computing encodings: %w", err)
	}

	recognitions := make([]Recognition, 0, len(faceResp.Faces))
	for _, face := range faceResp.Faces {
		rec := Recognition{FaceIndex: face.FaceIndex, Label: UnknownLabel}

		if match, ok := s.matcher.Match(face.Embedding); ok {
			rec.Label = match.Label
			rec.StudentID = match.StudentID
			rec.Distance = match.Distance
			rec.Matched = true

			marked, err := s.log.Mark(match.Label, match.StudentID, s.opts.Now())
			if err != nil {
				return nil, fmt.Errorf("marking attendance: %w", err)
			}
			rec.Marked = marked
		}

		recognitions = append(recognitions, rec)
	}

	return recognitions, nil
}
