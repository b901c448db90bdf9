package store

import (
	"time"
)

// Encoding represents one enrolled face encoding. Records are created at
// enrollment time and never updated; the full set is loaded into memory
// for a recognition session.
type Encoding struct {
	ID         int64
	Label      string // person name shown in attendance output
	StudentID  string
	Embedding  []float32
	Model      string // embedding model that produced the vector
	Dim        int
	SourcePath string // enrollment image the encoding came from
	CreatedAt  time.Time
}

// EncodingDim is the fixed dimension for face encodings (512 for buffalo_l/ResNet100)
const EncodingDim = 512
