package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/store"
	"github.com/kozaktomas/rollcall/internal/store/postgres"
)

// openStore selects the encoding backend. DATABASE_URL switches from
// the file store to PostgreSQL with pgvector; migrations run on open.
// Enrollment creates a missing file store, recognition treats it as
// fatal.
func openStore(ctx context.Context, cfg *config.Config) (store.Writer, func(), error) {
	return openStoreWith(ctx, cfg, store.CreateFile)
}

// openStoreExisting is openStore for commands that only make sense
// after enrollment has happened.
func openStoreExisting(ctx context.Context, cfg *config.Config) (store.Writer, func(), error) {
	return openStoreWith(ctx, cfg, store.OpenFile)
}

func openStoreWith(ctx context.Context, cfg *config.Config, openFile func(string) (*store.FileStore, error)) (store.Writer, func(), error) {
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		fmt.Println("Using PostgreSQL backend")
		return postgres.NewEnrollmentRepository(pool), func() { pool.Close() }, nil
	}

	st, err := openFile(cfg.Store.EncodingsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening encoding store: %w", err)
	}
	return st, func() {}, nil
}

// applyThresholdFlag lets --threshold override the MATCH_THRESHOLD
// env var and the model presets.
func applyThresholdFlag(cmd *cobra.Command, cfg *config.Config) {
	if v := mustGetFloat64(cmd, "threshold"); v > 0 {
		cfg.Matcher.Threshold = v
	}
}

// resolveThreshold picks the matching threshold for the enrolled set.
// The model preset from the stored encodings applies unless an explicit
// MATCH_THRESHOLD override is set.
func resolveThreshold(cfg *config.Config, encodings []store.Encoding) float64 {
	model := ""
	if len(encodings) > 0 {
		model = encodings[0].Model
	}
	return cfg.ThresholdFor(model)
}

func maxEncodingID(encodings []store.Encoding) int64 {
	var max int64
	for _, enc := range encodings {
		if enc.ID > max {
			max = enc.ID
		}
	}
	return max
}

// buildMatcher loads the enrolled encodings and builds a matcher.
// With HNSW_INDEX_PATH set a persisted HNSW index is loaded when it is
// current, rebuilt and saved when stale or missing; otherwise matching
// is a linear scan.
func buildMatcher(ctx context.Context, cfg *config.Config, reader store.Reader) (matcher.Matcher, float64, error) {
	encodings, err := reader.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("loading encodings: %w", err)
	}
	if len(encodings) == 0 {
		return nil, 0, matcher.ErrEmptyIndex
	}

	threshold := resolveThreshold(cfg, encodings)

	if cfg.Matcher.IndexPath == "" {
		return matcher.NewLinear(encodings, threshold), threshold, nil
	}

	// Re-enrolling an image replaces the record under a new ID without
	// changing the count, so freshness needs both checks.
	if meta, err := matcher.LoadHNSWMetadata(cfg.Matcher.IndexPath); err == nil {
		if meta.EncodingCount == len(encodings) && meta.MaxID == maxEncodingID(encodings) {
			idx, err := matcher.LoadHNSW(cfg.Matcher.IndexPath, threshold)
			if err == nil {
				fmt.Printf("Loaded HNSW index from %s (%d encodings)\n", cfg.Matcher.IndexPath, idx.Count())
				return idx, threshold, nil
			}
			fmt.Fprintf(os.Stderr, "Warning: failed to load HNSW index, rebuilding: %v\n", err)
		}
	}

	idx, err := matcher.NewHNSW(encodings, threshold)
	if err != nil {
		return nil, 0, fmt.Errorf("building HNSW index: %w", err)
	}
	if err := idx.Save(cfg.Matcher.IndexPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save HNSW index: %v\n", err)
	} else {
		fmt.Printf("Built HNSW index with %d encodings (saved to %s)\n", idx.Count(), cfg.Matcher.IndexPath)
	}
	return idx, threshold, nil
}
