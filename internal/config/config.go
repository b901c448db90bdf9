package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Encoder    EncoderConfig
	Camera     CameraConfig
	Store      StoreConfig
	Matcher    MatcherConfig
	Database   DatabaseConfig
	Thresholds ThresholdsConfig
}

type EncoderConfig struct {
	URL string // face embedding service, defaults to http://localhost:8000
	Dim int    // embedding dimension, defaults to 512
}

type CameraConfig struct {
	StreamURL      string // MJPEG camera stream (e.g. http://cam.local:8081/stream)
	WatchDir       string // directory of incoming frame files, used when StreamURL is empty
	SampleInterval int    // recognize every Nth frame (default 30)
}

type StoreConfig struct {
	EncodingsPath string // serialized enrollment store (default rollcall.db)
	AttendanceCSV string // attendance log (default attendance.csv)
	StudentsCSV   string // student registry (default students.csv)
}

type MatcherConfig struct {
	Threshold float64 // maximum cosine distance for a match, 0 = use model preset
	IndexPath string  // path to persist HNSW index (optional, empty = linear scan)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty = file-backed store
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// ThresholdsConfig holds per-model distance presets loaded from the
// embedded thresholds.yaml.
type ThresholdsConfig struct {
	Models map[string]ModelThreshold `yaml:"models"`
}

type ModelThreshold struct {
	Distance float64 `yaml:"distance"`
}

// DefaultThreshold is used when a model has no preset and no override is set.
const DefaultThreshold = 0.50

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		Encoder: EncoderConfig{
			URL: os.Getenv("ENCODER_URL"),
			Dim: envInt("ENCODER_DIM", 512),
		},
		Camera: CameraConfig{
			StreamURL:      os.Getenv("CAMERA_STREAM_URL"),
			WatchDir:       os.Getenv("CAMERA_WATCH_DIR"),
			SampleInterval: envInt("CAMERA_SAMPLE_INTERVAL", 30),
		},
		Store: StoreConfig{
			EncodingsPath: envString("ENCODINGS_PATH", "rollcall.db"),
			AttendanceCSV: envString("ATTENDANCE_CSV", "attendance.csv"),
			StudentsCSV:   envString("STUDENTS_CSV", "students.csv"),
		},
		Matcher: MatcherConfig{
			Threshold: envFloat("MATCH_THRESHOLD", 0),
			IndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Thresholds: thresholds,
	}
}

// ThresholdFor returns the matching threshold for a model.
// An explicit MATCH_THRESHOLD override wins, then the model preset,
// then the default.
func (c *Config) ThresholdFor(model string) float64 {
	if c.Matcher.Threshold > 0 {
		return c.Matcher.Threshold
	}
	if preset, ok := c.Thresholds.Models[model]; ok && preset.Distance > 0 {
		return preset.Distance
	}
	return DefaultThreshold
}
