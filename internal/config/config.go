package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Matching   MatchingConfig   `yaml:"matching"`
	Detector   DetectorConfig   `yaml:"detector"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type StoreConfig struct {
	DataFile  string `yaml:"data_file"`  // encrypted face database blob
	KeyFile   string `yaml:"key_file"`   // raw symmetric key, created once
	BackupDir string `yaml:"backup_dir"` // timestamped encrypted snapshots
	IndexFile string `yaml:"index_file"` // optional HNSW index persistence (empty = rebuilt on load)
}

type MatchingConfig struct {
	Tolerance float64 `yaml:"tolerance"` // accept/reject distance boundary, 0.4-0.6 recommended
}

type DetectorConfig struct {
	URL string `yaml:"url"` // detect-and-embed service, defaults to http://localhost:8000
	Dim int    `yaml:"dim"` // embedding dimensionality, defaults to 128
}

type EnrollmentConfig struct {
	TargetSamples int `yaml:"target_samples"` // accepted captures required per enrollment
}

type LoggingConfig struct {
	Dir   string `yaml:"dir"`   // dated event log files, empty = console only
	Level string `yaml:"level"` // debug, info, warn, error
}

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

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load builds the configuration from environment variables, then overlays the
// optional YAML file named by SECUREFACE_CONFIG. Defaults place all persisted
// state under a single data directory.
func Load() (*Config, error) {
	dataDir := envString("SECUREFACE_DATA_DIR", "data")

	cfg := &Config{
		Store: StoreConfig{
			DataFile:  envString("SECUREFACE_DATA_FILE", filepath.Join(dataDir, "face_data.enc")),
			KeyFile:   envString("SECUREFACE_KEY_FILE", filepath.Join(dataDir, "encryption.key")),
			BackupDir: envString("SECUREFACE_BACKUP_DIR", filepath.Join(dataDir, "backups")),
			IndexFile: os.Getenv("SECUREFACE_INDEX_FILE"),
		},
		Matching: MatchingConfig{
			Tolerance: envFloat("SECUREFACE_TOLERANCE", 0.5),
		},
		Detector: DetectorConfig{
			URL: envString("SECUREFACE_DETECTOR_URL", "http://localhost:8000"),
			Dim: envInt("SECUREFACE_EMBEDDING_DIM", 128),
		},
		Enrollment: EnrollmentConfig{
			TargetSamples: envInt("SECUREFACE_TARGET_SAMPLES", 15),
		},
		Logging: LoggingConfig{
			Dir:   envString("SECUREFACE_LOG_DIR", filepath.Join(dataDir, "logs")),
			Level: os.Getenv("SECUREFACE_LOG_LEVEL"),
		},
	}

	if path := os.Getenv("SECUREFACE_CONFIG"); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	return cfg, nil
}
