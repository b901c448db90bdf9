// Package camera provides frame sources for the recognition loop.
// A source delivers encoded image frames over a channel; the loop owns
// pacing and sampling. Two sources exist: an MJPEG HTTP camera stream
// (the usual IP-camera transport) and a watch directory that picks up
// image files as they appear.
package camera

import (
	"context"
)

// Frame is one encoded image from a source.
type Frame struct {
	Data   []byte
	Seq    int    // monotonically increasing per source
	Origin string // stream URL or file path, for log messages
}

// Source streams frames until the context is cancelled or the source
// runs dry. After the channel closes, Err reports why.
type Source interface {
	// Stream starts delivering frames. The returned channel is closed
	// when the source ends or ctx is cancelled.
	Stream(ctx context.Context) (<-chan Frame, error)
	// Err returns the terminal error after the stream channel closed,
	// nil for a clean shutdown.
	Err() error
}
