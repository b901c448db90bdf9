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
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/encoder"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/roster"
	"github.com/kozaktomas/rollcall/internal/session"
	"github.com/kozaktomas/rollcall/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the rollcall web server. The API accepts camera frames for
recognition, manages the student registry and serves attendance
reports. Suitable for pointing a kiosk or camera gateway at.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("max-size", 1920, "Resize larger frames before encoding (0 = no resize)")
	serveCmd.Flags().Float64("threshold", 0, "Maximum cosine distance for a match (0 = model preset)")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	st, closeStore, err := openStoreExisting(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, err := roster.Open(cfg.Store.StudentsCSV)
	if err != nil {
		return fmt.Errorf("opening student registry: %w", err)
	}
	alog, err := attendance.Open(cfg.Store.AttendanceCSV)
	if err != nil {
		return fmt.Errorf("opening attendance log: %w", err)
	}

	applyThresholdFlag(cmd, cfg)
	m, threshold, err := buildMatcher(ctx, cfg, st)
	if err != nil {
		if errors.Is(err, matcher.ErrEmptyIndex) {
			return errors.New("no enrolled encodings, run 'rollcall enroll' first")
		}
		return err
	}
	fmt.Printf("Matching threshold: %.2f\n", threshold)

	sess := session.New(encoder.NewClient(cfg.Encoder.URL), m, alog, session.Options{
		MaxImageSize: mustGetInt(cmd, "max-size"),
	})

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, host, port, web.Deps{
		Store:    st,
		Registry: registry,
		Log:      alog,
		Session:  sess,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting rollcall API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
