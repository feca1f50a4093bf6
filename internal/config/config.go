// Package config provides configuration loading for repoindex.
//
// Configuration comes from an optional YAML file overlaid with REPOINDEX_*
// environment variables. No repository path is ever configured here; every
// walk is requested explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete repoindex configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Index       IndexConfig       `koanf:"index"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Secrets     SecretsConfig     `koanf:"secrets"`
	Watch       WatchConfig       `koanf:"watch"`
	Events      EventsConfig      `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// QdrantConfig holds the Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	MaxMessageSize int      `koanf:"max_message_size"`
	DialTimeout    Duration `koanf:"dial_timeout"`
	RequestTimeout Duration `koanf:"request_timeout"`
	RetryAttempts  int      `koanf:"retry_attempts"`
}

// VectorStoreConfig selects the vector index backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// ChromemConfig holds embedded store settings.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// EmbeddingsConfig selects and configures the embedding function.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (default), "tei" or "openai".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
	// Dimension overrides the size detected from the model name when > 0.
	Dimension int          `koanf:"dimension"`
	Timeout   Duration     `koanf:"timeout"`
	OpenAI    OpenAIConfig `koanf:"openai"`
}

// OpenAIConfig holds settings for the OpenAI embeddings backend.
type OpenAIConfig struct {
	APIKey            Secret `koanf:"api_key"`
	BaseURL           string `koanf:"base_url"`
	Model             string `koanf:"model"`
	RequestsPerMinute int    `koanf:"requests_per_minute"`
}

// IndexConfig controls how repositories are walked and written.
type IndexConfig struct {
	BatchSize       int      `koanf:"batch_size"`
	Workers         int      `koanf:"workers"`
	AllowedRoots    []string `koanf:"allowed_roots"`
	ExcludePatterns []string `koanf:"exclude_patterns"`
	UseIgnoreFiles  bool     `koanf:"use_ignore_files"`
	DefaultTopK     int      `koanf:"default_top_k"`
	MaxTopK         int      `koanf:"max_top_k"`
}

// LoggingConfig holds the logger settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
	ServiceName string  `koanf:"service_name"`
}

// SecretsConfig controls scrubbing of credentials before content is stored.
type SecretsConfig struct {
	Enabled bool `koanf:"enabled"`
	// Engine is "rules" (built-in patterns, default) or "gitleaks".
	Engine    string   `koanf:"engine"`
	AllowList []string `koanf:"allow_list"`
}

// WatchConfig controls the file watcher used by "index --watch".
type WatchConfig struct {
	Debounce Duration `koanf:"debounce"`
}

// EventsConfig configures index run notifications over NATS. An empty URL
// disables publishing.
type EventsConfig struct {
	URL           string   `koanf:"url"`
	SubjectPrefix string   `koanf:"subject_prefix"`
	Timeout       Duration `koanf:"timeout"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			MaxMessageSize: 50 * 1024 * 1024,
			DialTimeout:    Duration(5 * time.Second),
			RequestTimeout: Duration(30 * time.Second),
			RetryAttempts:  3,
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem: ChromemConfig{
				Path:     "~/.local/share/repoindex/vectorstore",
				Compress: true,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:  "http://localhost:8080",
			Timeout:  Duration(30 * time.Second),
			OpenAI: OpenAIConfig{
				BaseURL:           "https://api.openai.com/v1",
				Model:             "text-embedding-ada-002",
				RequestsPerMinute: 3000,
			},
		},
		Index: IndexConfig{
			BatchSize:   64,
			DefaultTopK: 20,
			MaxTopK:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
			ServiceName: "repoindex",
		},
		Secrets: SecretsConfig{
			Engine: "rules",
		},
		Watch: WatchConfig{
			Debounce: Duration(2 * time.Second),
		},
		Events: EventsConfig{
			SubjectPrefix: "repoindex",
			Timeout:       Duration(5 * time.Second),
		},
	}
}

var (
	validVectorStores = map[string]bool{"chromem": true, "qdrant": true}
	validEmbedders    = map[string]bool{"fastembed": true, "tei": true, "openai": true}
	validLogFormats   = map[string]bool{"json": true, "console": true}
	validSecretEngine = map[string]bool{"rules": true, "gitleaks": true}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if !validVectorStores[c.VectorStore.Provider] {
		return fmt.Errorf("unknown vectorstore provider %q (use chromem or qdrant)", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" {
		if c.Qdrant.Host == "" {
			return errors.New("qdrant host is required")
		}
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
		}
	}
	if !validEmbedders[c.Embeddings.Provider] {
		return fmt.Errorf("unknown embeddings provider %q (use fastembed, tei or openai)", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && !c.Embeddings.OpenAI.APIKey.IsSet() {
		return errors.New("embeddings.openai.api_key is required for the openai provider")
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index batch size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("index workers must be >= 0, got %d", c.Index.Workers)
	}
	if c.Index.DefaultTopK <= 0 || c.Index.MaxTopK < c.Index.DefaultTopK {
		return fmt.Errorf("invalid top_k bounds: default %d, max %d", c.Index.DefaultTopK, c.Index.MaxTopK)
	}
	for _, root := range c.Index.AllowedRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("allowed root must be absolute: %q", root)
		}
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if !validSecretEngine[c.Secrets.Engine] {
		return fmt.Errorf("unknown secrets engine %q (use rules or gitleaks)", c.Secrets.Engine)
	}
	if c.Events.URL != "" && c.Events.SubjectPrefix == "" {
		return errors.New("events subject_prefix required when events.url is set")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint required when telemetry is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}
	return nil
}

// applyDefaults normalizes values that cannot be expressed as static defaults.
func applyDefaults(cfg *Config) {
	cfg.VectorStore.Chromem.Path = expandHome(cfg.VectorStore.Chromem.Path)
	cfg.Embeddings.CacheDir = expandHome(cfg.Embeddings.CacheDir)
	for i, root := range cfg.Index.AllowedRoots {
		cfg.Index.AllowedRoots[i] = filepath.Clean(expandHome(root))
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "repoindex"
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
