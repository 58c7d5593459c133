package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/matching"
	"github.com/kirillkom/csr-style-review/internal/core/rules"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/resilience"
)

type Config struct {
	APIPort         string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int

	// PostgresDSN is optional; runs are kept in memory when it is empty.
	PostgresDSN string

	// NATSURL is optional; progress stays in process when it is empty.
	NATSURL         string
	ProgressSubject string

	EmbedderBackend  string
	OllamaURL        string
	OllamaEmbedModel string
	HashingDims      int
	EmbedBatchSize   int
	EmbedTimeout     time.Duration

	IndexBackend           string
	QdrantURL              string
	QdrantCollectionPrefix string

	StorageBackend string
	StoragePath    string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Prefix       string
	S3PathStyle    bool

	ChunkMinChars int
	ChunkMaxChars int
	ReviewWorkers int

	MatchConfigFile string
	Matching        matching.Config
	// Lexicon supplies canonical terms to rules that list none; the file
	// overlay adds classes or replaces built-in ones by name.
	Lexicon         rules.Lexicon

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	BreakerEnabled      bool
	BreakerOpenTimeout  time.Duration
}

// Load reads the environment, then overlays MATCH_CONFIG_FILE when set.
func Load() (Config, error) {
	match := matching.DefaultConfig()
	match.TopK = mustEnvInt("MATCH_TOP_K", match.TopK)
	match.Floor = mustEnvFloat("MATCH_SIMILARITY_FLOOR", match.Floor)
	match.Transform = matching.Transform(strings.ToLower(mustEnv("MATCH_CONFIDENCE_TRANSFORM", string(match.Transform))))
	match.ContextWindow = mustEnvInt("MATCH_CONTEXT_WINDOW", match.ContextWindow)
	match.QueryTimeout = mustEnvDuration("INDEX_QUERY_TIMEOUT", match.QueryTimeout)

	cfg := Config{
		APIPort:         mustEnv("API_PORT", "8080"),
		LogLevel:        mustEnv("LOG_LEVEL", "info"),
		LogFormat:       mustEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: mustEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		MaxUploadBytes: int64(mustEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		RateLimitRPS:   mustEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: mustEnvInt("RATE_LIMIT_BURST", 20),
		MaxInFlight:    mustEnvInt("MAX_IN_FLIGHT_REVIEWS", 4),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:         mustEnv("NATS_URL", ""),
		ProgressSubject: mustEnv("PROGRESS_SUBJECT", "csr.progress"),

		EmbedderBackend:  strings.ToLower(mustEnv("EMBEDDER", "ollama")),
		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		HashingDims:      mustEnvInt("HASHING_DIMS", 512),
		EmbedBatchSize:   mustEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedTimeout:     mustEnvDuration("EMBED_TIMEOUT", 60*time.Second),

		IndexBackend:           strings.ToLower(mustEnv("INDEX_BACKEND", "memory")),
		QdrantURL:              mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollectionPrefix: mustEnv("QDRANT_COLLECTION_PREFIX", "style_rules"),

		StorageBackend: strings.ToLower(mustEnv("STORAGE_BACKEND", "localfs")),
		StoragePath:    mustEnv("STORAGE_PATH", "./data/exports"),
		S3Bucket:       mustEnv("S3_BUCKET", ""),
		S3Region:       mustEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     mustEnv("S3_ENDPOINT", ""),
		S3AccessKey:    mustEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    mustEnv("S3_SECRET_KEY", ""),
		S3Prefix:       mustEnv("S3_PREFIX", ""),
		S3PathStyle:    mustEnvBool("S3_PATH_STYLE", false),

		ChunkMinChars: mustEnvInt("CHUNK_MIN_CHARS", 40),
		ChunkMaxChars: mustEnvInt("CHUNK_MAX_CHARS", 2000),
		ReviewWorkers: mustEnvInt("REVIEW_WORKERS", 8),

		MatchConfigFile: mustEnv("MATCH_CONFIG_FILE", ""),
		Matching:        match,
		Lexicon:         rules.DefaultLexicon(),

		RetryMaxAttempts:    mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: mustEnvDuration("RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		BreakerEnabled:      mustEnvBool("BREAKER_ENABLED", true),
		BreakerOpenTimeout:  mustEnvDuration("BREAKER_OPEN_TIMEOUT", 20*time.Second),
	}

	if cfg.MatchConfigFile != "" {
		if err := cfg.applyFile(cfg.MatchConfigFile); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileOverlay is the YAML tuning file. Absent keys keep their current value.
type fileOverlay struct {
	Matching *matching.Config `yaml:"matching"`
	Chunking *struct {
		MinChars int `yaml:"min_chars"`
		MaxChars int `yaml:"max_chars"`
	} `yaml:"chunking"`
	Review *struct {
		Workers        int `yaml:"workers"`
		EmbedBatchSize int `yaml:"embed_batch_size"`
	} `yaml:"review"`
	Lexicon rules.Lexicon `yaml:"lexicon"`
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read match config %s: %w", path, err)
	}
	overlay := fileOverlay{Matching: &c.Matching}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse match config %s: %w", path, err)
	}
	c.Matching.Transform = matching.Transform(strings.ToLower(string(c.Matching.Transform)))
	if overlay.Chunking != nil {
		if overlay.Chunking.MinChars > 0 {
			c.ChunkMinChars = overlay.Chunking.MinChars
		}
		if overlay.Chunking.MaxChars > 0 {
			c.ChunkMaxChars = overlay.Chunking.MaxChars
		}
	}
	if overlay.Review != nil {
		if overlay.Review.Workers > 0 {
			c.ReviewWorkers = overlay.Review.Workers
		}
		if overlay.Review.EmbedBatchSize > 0 {
			c.EmbedBatchSize = overlay.Review.EmbedBatchSize
		}
	}
	if len(overlay.Lexicon) > 0 {
		for name, class := range overlay.Lexicon {
			class.Category = domain.RuleCategory(strings.ToUpper(string(class.Category)))
			overlay.Lexicon[name] = class
		}
		c.Lexicon = c.Lexicon.Merge(overlay.Lexicon)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Matching.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Lexicon.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ReviewWorkers <= 0 {
		errs = append(errs, fmt.Errorf("REVIEW_WORKERS must be positive, got %d", c.ReviewWorkers))
	}
	if c.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize))
	}
	if c.ChunkMaxChars <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_MAX_CHARS must be positive, got %d", c.ChunkMaxChars))
	}
	switch c.EmbedderBackend {
	case "ollama", "hashing":
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDER %q", c.EmbedderBackend))
	}
	switch c.IndexBackend {
	case "memory", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q", c.IndexBackend))
	}
	switch c.StorageBackend {
	case "localfs":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	return errors.Join(errs...)
}

func (c Config) Resilience() resilience.Config {
	r := resilience.DefaultConfig()
	r.RetryMaxAttempts = c.RetryMaxAttempts
	r.RetryInitialBackoff = c.RetryInitialBackoff
	r.BreakerEnabled = c.BreakerEnabled
	r.BreakerOpenTimeout = c.BreakerOpenTimeout
	return r
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
