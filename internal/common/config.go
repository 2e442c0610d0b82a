package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Extract ExtractConfig
	OCR     OCRConfig
	LLM     LLMConfig
	Store   StoreConfig
	Journal JournalConfig
}

// ServerConfig holds the HTTP boundary configuration
type ServerConfig struct {
	Addr             string
	MaxFileSizeBytes int64
}

// ExtractConfig bounds calls to the extraction boundary
type ExtractConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// OCRConfig holds recognition engine configuration
type OCRConfig struct {
	Tesseract        string
	Pdftotext        string
	Lang             string
	TessdataDir      string
	ArtifactCacheDir string
}

// LLMConfig holds the analyzer model configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// StoreConfig points at the external document+blob store
type StoreConfig struct {
	BaseURL    string
	APIKey     string
	DatabaseID string
	BucketID   string
	Timeout    time.Duration
}

// JournalConfig is optional; an empty DSN disables the job journal.
type JournalConfig struct {
	DSN string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             getEnv("HTTP_ADDR", ":8080"),
			MaxFileSizeBytes: getEnvAsInt64("MAX_FILE_SIZE_BYTES", 15<<20),
		},
		Extract: ExtractConfig{
			Endpoint: getEnv("EXTRACT_ENDPOINT", ""),
			Timeout:  getEnvAsDuration("EXTRACT_TIMEOUT", 30*time.Second),
		},
		OCR: OCRConfig{
			Tesseract:        getEnv("TESSERACT", "tesseract"),
			Pdftotext:        getEnv("PDFTOTEXT", "pdftotext"),
			Lang:             getEnv("OCR_LANG", "por"),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Store: StoreConfig{
			BaseURL:    getEnv("STORE_BASE_URL", ""),
			APIKey:     getEnv("STORE_API_KEY", ""),
			DatabaseID: getEnv("STORE_DATABASE_ID", "clinic"),
			BucketID:   getEnv("STORE_BUCKET_ID", "exam-files"),
			Timeout:    getEnvAsDuration("STORE_TIMEOUT", 30*time.Second),
		},
		Journal: JournalConfig{
			DSN: getEnv("DB_URL", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration for required values.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewFailure(KindValidationFailed, "OPENAI_API_KEY is required", nil)
	}
	if c.Server.Addr == "" {
		return NewFailure(KindValidationFailed, "HTTP_ADDR is required", nil)
	}
	if c.Server.MaxFileSizeBytes <= 0 {
		return NewFailure(KindValidationFailed, "MAX_FILE_SIZE_BYTES must be positive", nil)
	}
	return nil
}
