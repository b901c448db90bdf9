package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the HNSW match index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and save the HNSW index from enrolled encodings",
	Long: `Build constructs an HNSW index over the enrolled encodings and saves
it to HNSW_INDEX_PATH. Recognition loads the saved index instead of
scanning linearly, which matters once enrollment grows past a few
hundred people.`,
	RunE: runIndexBuild,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show saved index metadata",
	RunE:  runIndexInfo,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexInfoCmd)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.Matcher.IndexPath == "" {
		return errors.New("HNSW_INDEX_PATH is not set")
	}

	st, closeStore, err := openStoreExisting(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	encodings, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("loading encodings: %w", err)
	}
	if len(encodings) == 0 {
		return errors.New("no enrolled encodings, run 'rollcall enroll' first")
	}

	idx, err := matcher.NewHNSW(encodings, resolveThreshold(cfg, encodings))
	if err != nil {
		return fmt.Errorf("building HNSW index: %w", err)
	}
	if err := idx.Save(cfg.Matcher.IndexPath); err != nil {
		return fmt.Errorf("saving HNSW index: %w", err)
	}

	fmt.Printf("Built HNSW index with %d encodings, saved to %s\n", idx.Count(), cfg.Matcher.IndexPath)
	return nil
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Matcher.IndexPath == "" {
		return errors.New("HNSW_INDEX_PATH is not set")
	}

	meta, err := matcher.LoadHNSWMetadata(cfg.Matcher.IndexPath)
	if err != nil {
		return fmt.Errorf("reading index metadata: %w", err)
	}

	fmt.Printf("Index:     %s\n", cfg.Matcher.IndexPath)
	fmt.Printf("Encodings: %d\n", meta.EncodingCount)
	fmt.Printf("Built:     %s\n", meta.BuildTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("Version:   %d\n", meta.Version)
	return nil
}
