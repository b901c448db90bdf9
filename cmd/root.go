package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Face recognition attendance from the command line",
	Long: `Rollcall enrolls labeled face images, matches camera frames against
the enrolled set and keeps a deduplicated per-day attendance log.
Face encodings come from an InsightFace-compatible embedding server.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
