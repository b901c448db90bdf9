package matcher

// HNSW index parameters for 512-dim face encodings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchK is how many candidates to pull from the index per query.
	// The nearest one decides the match; the rest exist so threshold
	// filtering still has material to work with.
	HNSWSearchK = 5
)
