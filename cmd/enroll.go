package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/enroll"
	"github.com/kozaktomas/rollcall/internal/roster"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Enroll face images from a directory",
	Long: `Enroll computes a face encoding for every image in a directory and
stores it. Images directly in the directory are labeled by file name
("jan_novak.jpg" enrolls as "jan novak"); images grouped in
subdirectories are labeled by the subdirectory name.

Images with no detectable face are skipped. Images with several faces
are rejected unless --best-face is set, which keeps the detection with
the highest score.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("concurrency", 4, "Number of concurrent encoder requests")
	enrollCmd.Flags().Bool("best-face", false, "Keep the highest-scoring face from multi-face images")
	enrollCmd.Flags().Int("max-size", 1920, "Resize larger images before upload (0 = no resize)")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	dir := args[0]

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, err := roster.Open(cfg.Store.StudentsCSV)
	if err != nil {
		return fmt.Errorf("opening student registry: %w", err)
	}

	images, err := enroll.ScanDirectory(dir)
	if err != nil {
		return err
	}
	fmt.Printf("Images to enroll: %d\n\n", len(images))

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	enroller := enroll.New(encoder.NewClient(cfg.Encoder.URL), st, enroll.Options{
		Concurrency:  mustGetInt(cmd, "concurrency"),
		BestFace:     mustGetBool(cmd, "best-face"),
		MaxImageSize: mustGetInt(cmd, "max-size"),
		ExpectedDim:  cfg.Encoder.Dim,
		ResolveStudentID: func(label string) string {
			if student, ok := registry.Get(label); ok {
				return student.StudentID
			}
			return ""
		},
		OnResult: func(enroll.Result) { bar.Add(1) },
	})

	summary, results, err := enroller.EnrollDirectory(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Println()

	for _, res := range results {
		switch res.Status {
		case enroll.StatusNoFace:
			fmt.Fprintf(os.Stderr, "Warning: no face found in %s, skipped\n", res.Path)
		case enroll.StatusMultiFace:
			fmt.Fprintf(os.Stderr, "Warning: %d faces found in %s, rejected (use --best-face)\n",
				res.FacesFound, res.Path)
		case enroll.StatusFailed:
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", res.Path, res.Err)
		}
	}

	total, _ := st.Count(ctx)
	fmt.Printf("\nCompleted: %d enrolled, %d without a face, %d multi-face, %d failed\n",
		summary.Enrolled, summary.NoFace, summary.MultiFace, summary.Failed)
	fmt.Printf("Total encodings in store: %d\n", total)

	if summary.Failed > 0 {
		return fmt.Errorf("%d images failed to enroll", summary.Failed)
	}
	return nil
}
