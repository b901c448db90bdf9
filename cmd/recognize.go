package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/store"
	"github.com/kozaktomas/rollcall/internal/store/postgres"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize faces in a single image",
	Long: `Recognize detects faces in one image and matches them against the
enrolled encodings without touching the attendance log. Useful for
checking enrollment quality and tuning the matching threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Int("candidates", 0, "Show the N nearest enrolled candidates per face")
	recognizeCmd.Flags().Int("max-size", 1920, "Resize larger images before upload (0 = no resize)")
	recognizeCmd.Flags().Float64("threshold", 0, "Maximum cosine distance for a match (0 = model preset)")
}

// showCandidates prints the nearest enrolled encodings for one face.
// With a PostgreSQL backend the search runs on pgvector; the file
// backend scans in memory.
func showCandidates(ctx context.Context, st store.Writer, cfg *config.Config, embedding []float32, k int) {
	if repo, ok := st.(*postgres.EnrollmentRepository); ok {
		encs, distances, err := repo.FindNearest(ctx, embedding, k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: candidate search failed: %v\n", err)
			return
		}
		for i, enc := range encs {
			fmt.Printf("    %d. %-24s %.4f  (%s)\n", i+1, enc.Label, distances[i], enc.SourcePath)
		}
		return
	}

	encodings, err := st.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: candidate search failed: %v\n", err)
		return
	}
	linear := matcher.NewLinear(encodings, resolveThreshold(cfg, encodings))
	for i, c := range linear.Candidates(embedding, k) {
		fmt.Printf("    %d. %-24s %.4f\n", i+1, c.Label, c.Distance)
	}
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if maxSize := mustGetInt(cmd, "max-size"); maxSize > 0 {
		if resized, err := encoder.ResizeImage(data, maxSize); err == nil {
			data = resized
		}
	}

	st, closeStore, err := openStoreExisting(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	applyThresholdFlag(cmd, cfg)
	m, threshold, err := buildMatcher(ctx, cfg, st)
	if err != nil {
		if errors.Is(err, matcher.ErrEmptyIndex) {
			return errors.New("no enrolled encodings, run 'rollcall enroll' first")
		}
		return err
	}

	faceResp, err := encoder.NewClient(cfg.Encoder.URL).ComputeFaceEncodings(ctx, data)
	if err != nil {
		return fmt.Errorf("computing encodings: %w", err)
	}
	if faceResp.FacesCount == 0 {
		fmt.Println("No faces detected")
		return nil
	}

	fmt.Printf("Detected %d face(s), threshold %.2f\n\n", faceResp.FacesCount, threshold)

	candidates := mustGetInt(cmd, "candidates")
	for _, face := range faceResp.Faces {
		if match, ok := m.Match(face.Embedding); ok {
			fmt.Printf("Face %d: %s (distance %.4f, score %.2f)\n",
				face.FaceIndex, match.Label, match.Distance, face.DetScore)
		} else {
			fmt.Printf("Face %d: unknown (score %.2f)\n", face.FaceIndex, face.DetScore)
		}
		if candidates > 0 {
			showCandidates(ctx, st, cfg, face.Embedding, candidates)
		}
	}
	return nil
}
