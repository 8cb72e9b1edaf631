package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docmux/internal/engine"
)

// DefaultCategoryTimeout matches the per-category processing timeout of the
// previous service.
const DefaultCategoryTimeout = 180 * time.Second

type Config struct {
	Port     string
	LogLevel slog.Level

	// Auth
	DocmuxAPIKey string

	// Worker pool
	WorkerCount   int
	MaxQueueSize  int
	JobMaxRetries int
	JobTTL        time.Duration

	// Uploads
	MaxUploadBytes int64
	UploadDir      string

	// Engine table
	EngineTable      string
	CategoryTimeouts map[engine.Category]time.Duration
	ResultCacheSize  int

	// Local OCR
	OCRConfidenceCutoff float64
	OCRDPI              int
	OCRMaxPages         int
	TesseractBin        string
	TesseractLang       string
	PdftotextBin        string
	PdftoppmBin         string

	// Google Cloud
	GoogleCredentials     string // inline service-account JSON
	GoogleCredentialsFile string
	GoogleProject         string
	GoogleLocation        string
	DocumentAIProcessorID string
}

func Load() Config {
	cfg := Config{
		Port:     envOr("PORT", "8090"),
		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),

		DocmuxAPIKey: os.Getenv("DOCMUX_API_KEY"),

		WorkerCount:   envInt("WORKER_COUNT", 4),
		MaxQueueSize:  envInt("MAX_QUEUE_SIZE", 100),
		JobMaxRetries: envInt("JOB_MAX_RETRIES", 3),
		JobTTL:        envDuration("JOB_TTL", 1*time.Hour),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		UploadDir:      envOr("UPLOAD_DIR", os.TempDir()),

		EngineTable: os.Getenv("ENGINE_TABLE"),
		CategoryTimeouts: map[engine.Category]time.Duration{
			engine.PDF:         envSeconds("PDF_PROCESSING_TIMEOUT", DefaultCategoryTimeout),
			engine.Image:       envSeconds("IMAGE_PROCESSING_TIMEOUT", DefaultCategoryTimeout),
			engine.Spreadsheet: envSeconds("SPREADSHEET_PROCESSING_TIMEOUT", DefaultCategoryTimeout),
			engine.Word:        envSeconds("WORD_PROCESSING_TIMEOUT", DefaultCategoryTimeout),
		},
		ResultCacheSize: envInt("RESULT_CACHE_SIZE", 256),

		OCRConfidenceCutoff: envFloat("OCR_CONFIDENCE_CUTOFF", 60),
		OCRDPI:              envInt("OCR_DPI", 300),
		OCRMaxPages:         envInt("OCR_MAX_PAGES", 0),
		TesseractBin:        envOr("TESSERACT_BIN", "tesseract"),
		TesseractLang:       envOr("TESSERACT_LANG", "eng"),
		PdftotextBin:        envOr("PDFTOTEXT_BIN", "pdftotext"),
		PdftoppmBin:         envOr("PDFTOPPM_BIN", "pdftoppm"),

		GoogleCredentials:     os.Getenv("GOOGLE_CREDENTIALS"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		GoogleProject:         os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GoogleLocation:        envOr("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: os.Getenv("DOCUMENT_AI_PROCESSOR_ID"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobMaxRetries < 0 {
		cfg.JobMaxRetries = 0
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.OCRDPI <= 0 {
		cfg.OCRDPI = 300
	}

	return cfg
}

// Validate checks the settings shared by every binary.
func (c Config) Validate() error {
	var errs []error
	for _, cat := range engine.Categories {
		if c.CategoryTimeouts[cat] <= 0 {
			errs = append(errs, fmt.Errorf("%s processing timeout must be positive", cat))
		}
	}
	if c.OCRConfidenceCutoff < 0 || c.OCRConfidenceCutoff > 100 {
		errs = append(errs, fmt.Errorf("OCR_CONFIDENCE_CUTOFF must be within [0,100], got %v", c.OCRConfidenceCutoff))
	}
	if c.DocumentAIProcessorID != "" && c.GoogleProject == "" {
		errs = append(errs, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required with DOCUMENT_AI_PROCESSOR_ID"))
	}
	return errors.Join(errs...)
}

// ValidateServer additionally requires the API key.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DocmuxAPIKey == "" {
		return fmt.Errorf("DOCMUX_API_KEY is required")
	}
	return nil
}

// DocumentAIProcessor returns the full processor resource name, or "" when
// Document AI is not configured.
func (c Config) DocumentAIProcessor() string {
	if c.DocumentAIProcessorID == "" || c.GoogleProject == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.GoogleProject, c.GoogleLocation, c.DocumentAIProcessorID)
}

// DocumentAIEndpoint is the regional API endpoint for GoogleLocation.
func (c Config) DocumentAIEndpoint() string {
	return fmt.Sprintf("%s-documentai.googleapis.com:443", c.GoogleLocation)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envSeconds accepts a bare number of seconds or a Go duration string.
func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return envDuration(key, fallback)
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return lvl
}
