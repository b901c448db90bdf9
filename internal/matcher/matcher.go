// Package matcher finds the enrolled encoding nearest to a query vector.
// The interface is deliberately small so the linear scan used for
// classroom-scale rosters can be swapped for an indexed structure without
// touching enrollment or logging logic.
package matcher

import (
	"sort"

	"github.com/kozaktomas/rollcall/internal/store"
)

// Match is the best enrolled candidate for a query encoding.
type Match struct {
	Label     string
	StudentID string
	Distance  float64
}

// Matcher answers nearest-neighbor queries over enrolled encodings.
// The boolean result is false when no candidate falls under the
// configured distance threshold.
type Matcher interface {
	Match(query []float32) (*Match, bool)
}

// Linear is a threshold-gated linear scan over all enrolled encodings.
// Correct and fast enough for rosters of tens to low hundreds of people.
type Linear struct {
	encodings []store.Encoding
	threshold float64
}

// NewLinear creates a linear matcher over the given encodings.
func NewLinear(encodings []store.Encoding, threshold float64) *Linear {
	return &Linear{encodings: encodings, threshold: threshold}
}

// Match returns the closest enrolled encoding under the threshold.
func (m *Linear) Match(query []float32) (*Match, bool) {
	var best *Match
	for i := range m.encodings {
		enc := &m.encodings[i]
		if len(enc.Embedding) == 0 {
			continue
		}
		distance := CosineDistance(query, enc.Embedding)
		if best == nil || distance < best.Distance {
			best = &Match{
				Label:     enc.Label,
				StudentID: enc.StudentID,
				Distance:  distance,
			}
		}
	}

	if best == nil || best.Distance > m.threshold {
		return nil, false
	}
	return best, true
}

// Candidates returns the k nearest encodings regardless of threshold,
// closest first. Used for diagnostics.
func (m *Linear) Candidates(query []float32, k int) []Match {
	matches := make([]Match, 0, len(m.encodings))
	for i := range m.encodings {
		enc := &m.encodings[i]
		if len(enc.Embedding) == 0 {
			continue
		}
		matches = append(matches, Match{
			Label:     enc.Label,
			StudentID: enc.StudentID,
			Distance:  CosineDistance(query, enc.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Count returns the number of encodings the matcher scans.
func (m *Linear) Count() int {
	return len(m.encodings)
}
