package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/session"
)

var attendCmd = &cobra.Command{
	Use:   "attend",
	Short: "Run the recognition loop and mark attendance",
	Long: `Attend consumes camera frames, matches detected faces against the
enrolled encodings and marks recognized people present in the
attendance log. Each person is logged at most once per day.

Frames come from an MJPEG camera stream (CAMERA_STREAM_URL or
--stream) or from a watched directory of image files (CAMERA_WATCH_DIR
or --dir). The loop runs until interrupted.`,
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().String("stream", "", "MJPEG camera stream URL")
	attendCmd.Flags().String("dir", "", "Directory of incoming frame files")
	attendCmd.Flags().Bool("once", false, "Process the directory's current frames and exit")
	attendCmd.Flags().Int("interval", 0, "Recognize every Nth frame (default from CAMERA_SAMPLE_INTERVAL)")
	attendCmd.Flags().Int("max-size", 1920, "Resize larger frames before upload (0 = no resize)")
	attendCmd.Flags().Bool("quiet", false, "Only print new attendance marks")
	attendCmd.Flags().Float64("threshold", 0, "Maximum cosine distance for a match (0 = model preset)")
}

// buildSource picks the frame source from flags and config.
func buildSource(cmd *cobra.Command, cfg *config.Config) (camera.Source, error) {
	streamURL := mustGetString(cmd, "stream")
	if streamURL == "" {
		streamURL = cfg.Camera.StreamURL
	}
	watchDir := mustGetString(cmd, "dir")
	if watchDir == "" {
		watchDir = cfg.Camera.WatchDir
	}

	switch {
	case streamURL != "" && watchDir != "":
		return nil, errors.New("--stream and --dir are mutually exclusive")
	case streamURL != "":
		fmt.Printf("Camera stream: %s\n", streamURL)
		return camera.NewMJPEGSource(streamURL), nil
	case watchDir != "" && mustGetBool(cmd, "once"):
		fmt.Printf("Frame directory (single pass): %s\n", watchDir)
		return camera.NewDirSourceOnce(watchDir), nil
	case watchDir != "":
		fmt.Printf("Frame directory: %s\n", watchDir)
		return camera.NewDirSource(watchDir, time.Second), nil
	}
	return nil, errors.New("no frame source: set CAMERA_STREAM_URL, CAMERA_WATCH_DIR or use --stream/--dir")
}

func runAttend(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	alog, err := attendance.Open(cfg.Store.AttendanceCSV)
	if err != nil {
		return fmt.Errorf("opening attendance log: %w", err)
	}

	source, err := buildSource(cmd, cfg)
	if err != nil {
		return err
	}

	interval := mustGetInt(cmd, "interval")
	if interval <= 0 {
		interval = cfg.Camera.SampleInterval
	}
	quiet := mustGetBool(cmd, "quiet")

	fmt.Printf("Matching threshold: %.2f, sampling every %d frames\n", threshold, interval)
	fmt.Println("Press Ctrl+C to stop")

	sess := session.New(encoder.NewClient(cfg.Encoder.URL), m, alog, session.Options{
		SampleInterval: interval,
		MaxImageSize:   mustGetInt(cmd, "max-size"),
		OnRecognition: func(rec session.Recognition) {
			switch {
			case rec.Marked:
				fmt.Printf("[%s] %s marked present (distance %.3f)\n",
					time.Now().Format("15:04:05"), rec.Label, rec.Distance)
			case rec.Matched && !quiet:
				fmt.Printf("[%s] %s seen, already marked today\n",
					time.Now().Format("15:04:05"), rec.Label)
			case !quiet:
				fmt.Printf("[%s] unknown face (frame %d)\n",
					time.Now().Format("15:04:05"), rec.FrameSeq)
			}
		},
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nStopping...")
		cancel()
	}()

	if err := sess.Run(ctx, source); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	present := alog.Today(time.Now())
	fmt.Printf("\nPresent today: %d\n", len(present))
	for _, row := range present {
		fmt.Printf("  %s at %s\n", row.Name, row.Time)
	}
	return nil
}
