/**
 * Configuration for the docuparse pipeline
 *
 * Loads configuration from environment variables (populated from .env by the
 * caller) with an optional YAML overlay file.
 */

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/minoad/docuparse/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds pipeline configuration
type Config struct {
	// OCR configuration
	TessdataPrefix    string  `yaml:"tessdata_prefix"`
	OCRLanguage       string  `yaml:"ocr_language"`
	OCRBackend        string  `yaml:"ocr_backend"`
	RotationThreshold float64 `yaml:"rotation_threshold"`
	PosterizeBits     int     `yaml:"posterize_bits"`
	QualitySampleSize int     `yaml:"quality_sample_size"`
	RetrySparseText   bool    `yaml:"retry_sparse_text"`
	DictionaryPath    string  `yaml:"dictionary_path"`

	// Google Vision credentials (OCR_BACKEND=vision)
	GoogleCredentialsJSON string `yaml:"-"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Store configuration
	StoreBackends   []string `yaml:"store_backends"`
	MongoURI        string   `yaml:"-"`
	MongoDatabase   string   `yaml:"mongo_database"`
	MongoCollection string   `yaml:"mongo_collection"`
	DatabaseURL     string   `yaml:"-"`
	PostgresTable   string   `yaml:"postgres_table"`
	RedisURL        string   `yaml:"-"`
	RedisKeyPrefix  string   `yaml:"redis_key_prefix"`

	// Worker configuration
	WorkerConcurrency int `yaml:"worker_concurrency"`
	ProcessingTimeout int `yaml:"processing_timeout_ms"`

	// Fixture directory used by the test command
	TestDataDir string `yaml:"test_data_dir"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		TessdataPrefix:        getEnvOrDefault("TESSDATA_PREFIX", ""),
		OCRLanguage:           getEnvOrDefault("OCR_LANGUAGE", "eng"),
		OCRBackend:            getEnvOrDefault("OCR_BACKEND", "tesseract"),
		RotationThreshold:     getEnvAsFloatOrDefault("OCR_ROTATION_THRESHOLD", 0.0),
		PosterizeBits:         getEnvAsIntOrDefault("OCR_POSTERIZE_BITS", 3),
		QualitySampleSize:     getEnvAsIntOrDefault("OCR_QUALITY_SAMPLE", 50),
		RetrySparseText:       getEnvAsBoolOrDefault("OCR_RETRY_SPARSE_TEXT", true),
		DictionaryPath:        getEnvOrDefault("DICTIONARY_PATH", "/usr/share/dict/words"),
		GoogleCredentialsJSON: getEnvOrDefault("GOOGLE_CREDENTIALS", ""),
		GoogleCredentialsFile: getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		StoreBackends:         splitList(getEnvOrDefault("STORE_BACKENDS", "mongo")),
		MongoURI:              mongoURIFromEnv(),
		MongoDatabase:         getEnvOrDefault("MONGO_DATABASE", "docuparse"),
		MongoCollection:       getEnvOrDefault("MONGO_COLLECTION", "documents"),
		DatabaseURL:           getEnvOrDefault("DATABASE_URL", ""),
		PostgresTable:         getEnvOrDefault("POSTGRES_TABLE", "documents"),
		RedisURL:              getEnvOrDefault("REDIS_URL", ""),
		RedisKeyPrefix:        getEnvOrDefault("REDIS_KEY_PREFIX", "docuparse:"),
		WorkerConcurrency:     getEnvAsIntOrDefault("WORKER_CONCURRENCY", 1),
		ProcessingTimeout:     getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		TestDataDir:           getEnvOrDefault("TEST_DATA_DIR", "data/test/pdf"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "console"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MergeFile overlays the keys present in a YAML file onto cfg.
// Connection strings stay environment-only.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.PosterizeBits < 1 || c.PosterizeBits > 8 {
		return fmt.Errorf("OCR_POSTERIZE_BITS must be between 1 and 8, got %d", c.PosterizeBits)
	}

	if c.QualitySampleSize < 0 {
		return fmt.Errorf("OCR_QUALITY_SAMPLE must not be negative, got %d", c.QualitySampleSize)
	}

	if c.RotationThreshold < 0 {
		return fmt.Errorf("OCR_ROTATION_THRESHOLD must not be negative, got %v", c.RotationThreshold)
	}

	if c.ProcessingTimeout < 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must not be negative, got %d", c.ProcessingTimeout)
	}

	switch c.OCRBackend {
	case "tesseract", "vision":
	default:
		return fmt.Errorf("OCR_BACKEND must be tesseract or vision, got %q", c.OCRBackend)
	}

	for _, backend := range c.StoreBackends {
		switch backend {
		case "mongo", "postgres", "redis", "memory":
		default:
			return fmt.Errorf("unknown store backend %q", backend)
		}
	}

	return nil
}

// Timeout returns the per-file processing timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// GetLoggerConfig returns the logging configuration
func (c *Config) GetLoggerConfig() logging.LogConfig {
	lc := logging.DefaultConfig()
	lc.Level = c.LogLevel
	lc.Format = c.LogFormat
	return lc
}

// mongoURIFromEnv returns MONGO_URI, or builds one from MONGO_USER,
// MONGO_PASSWORD and MONGO_HOST. Missing credentials yield "".
func mongoURIFromEnv() string {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return uri
	}

	user := os.Getenv("MONGO_USER")
	password := os.Getenv("MONGO_PASSWORD")
	if user == "" || password == "" {
		return ""
	}

	u := url.URL{
		Scheme: "mongodb",
		User:   url.UserPassword(user, password),
		Host:   getEnvOrDefault("MONGO_HOST", "localhost:27017"),
		Path:   "/",
	}
	return u.String()
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
