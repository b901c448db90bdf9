package matcher

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/rollcall/internal/store"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	EncodingCount int       `json:"encoding_count"`
	MaxID         int64     `json:"max_id"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
}

const hnswMetadataVersion = 1

// HNSW is an approximate nearest-neighbor matcher over enrolled
// encodings. Overkill for a single classroom but keeps recognition fast
// when one store serves a whole school.
type HNSW struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	byID       map[int64]*store.Encoding
	threshold  float64
	mu         sync.RWMutex
}

// NewHNSW builds an HNSW matcher from a slice of encodings.
func NewHNSW(encodings []store.Encoding, threshold float64) (*HNSW, error) {
	h := &HNSW{
		byID:      make(map[int64]*store.Encoding, len(encodings)),
		threshold: threshold,
	}

	if len(encodings) == 0 {
		return h, nil
	}

	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	for i := range encodings {
		enc := &encodings[i]
		if len(enc.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(enc.ID, enc.Embedding))
		h.byID[enc.ID] = enc
	}

	h.graph = g
	return h, nil
}

// Match returns the closest enrolled encoding under the threshold.
func (h *HNSW) Match(query []float32) (*Match, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, false
	}

	var neighbors []hnsw.Node[int64]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, HNSWSearchK)
	} else {
		neighbors = h.graph.Search(query, HNSWSearchK)
	}

	var best *Match
	for _, n := range neighbors {
		enc, ok := h.byID[n.Key]
		if !ok {
			continue // removed from the roster after the index was built
		}
		distance := CosineDistance(query, n.Value)
		if best == nil || distance < best.Distance {
			best = &Match{
				Label:     enc.Label,
				StudentID: enc.StudentID,
				Distance:  distance,
			}
		}
	}

	if best == nil || best.Distance > h.threshold {
		return nil, false
	}
	return best, true
}

// Count returns the number of indexed encodings.
func (h *HNSW) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Save persists the index, its metadata, and the encoding records to disk
// so recognition can start without rebuilding the graph.
func (h *HNSW) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		// Empty index, remove any stale files.
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".encodings")
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	var maxID int64
	encodings := make([]store.Encoding, 0, len(h.byID))
	for id, enc := range h.byID {
		encodings = append(encodings, *enc)
		if id > maxID {
			maxID = id
		}
	}

	metadata := HNSWIndexMetadata{
		EncodingCount: len(encodings),
		MaxID:         maxID,
		BuildTime:     time.Now(),
		Version:       hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(encodings); err != nil {
		return fmt.Errorf("failed to encode encoding records: %w", err)
	}
	if err := os.WriteFile(path+".encodings", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write encoding records: %w", err)
	}

	return nil
}

// LoadHNSW loads a persisted HNSW matcher from disk.
func LoadHNSW(path string, threshold float64) (*HNSW, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("HNSW index file not found: %s", path)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".encodings")
	if err != nil {
		return nil, fmt.Errorf("failed to read encoding records: %w", err)
	}
	var encodings []store.Encoding
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&encodings); err != nil {
		return nil, fmt.Errorf("failed to decode encoding records: %w", err)
	}

	h := &HNSW{
		savedGraph: saved,
		byID:       make(map[int64]*store.Encoding, len(encodings)),
		threshold:  threshold,
	}
	for i := range encodings {
		h.byID[encodings[i].ID] = &encodings[i]
	}
	return h, nil
}

// LoadHNSWMetadata loads metadata from the index's .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// ErrEmptyIndex is returned when building a matcher from an empty store.
var ErrEmptyIndex = errors.New("no enrolled encodings")
