package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ragchat/internal/domain"
)

// CohereConfig holds configuration for the Cohere embedder.
type CohereConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	Model         string `yaml:"model"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	MinIntervalMs int    `yaml:"min_interval_ms"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string               `yaml:"type"`
	Dimension int                  `yaml:"dimension"`
	Cohere    CohereConfig         `yaml:"cohere"`
	OpenAI    OpenAIEmbedderConfig `yaml:"openai"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
// Type "auto" prefers Qdrant when URL and API key are set and falls back to
// the local store.
type VectorStoreConfig struct {
	Type       string       `yaml:"type"`
	Collection string       `yaml:"collection"`
	LocalPath  string       `yaml:"local_path"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
}

// IngestConfig tunes batching and the retry policy.
type IngestConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	MaxAttempts   int    `yaml:"max_attempts"`
	BaseDelaySecs int    `yaml:"base_delay_secs"`
	CooldownSecs  int    `yaml:"cooldown_secs"`
	JournalPath   string `yaml:"journal_path"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// GeneratorConfig selects the answer generator: "openrouter" or "local".
type GeneratorConfig struct {
	Type        string  `yaml:"type"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LogLevel    string            `yaml:"log_level"`
	DocsPath    string            `yaml:"docs_path"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Server      ServerConfig      `yaml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Resolve loads .env files, then the config file (path, or the default
// lookup when empty), then applies environment overrides.
func Resolve(path string) (*AppConfig, string, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, "", err
	}
	var (
		cfg *AppConfig
		err error
	)
	if path == "" {
		cfg, path, err = LoadDefault()
	} else {
		cfg, err = Load(path)
	}
	if err != nil {
		return nil, path, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadEnvFiles loads .env, then .env.local overriding it. Missing files are ignored.
func LoadEnvFiles() error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := godotenv.Overload(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	return nil
}

// ApplyEnv overrides file values with the deployment environment variables.
func ApplyEnv(cfg *AppConfig) error {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("QDRANT_URL", &cfg.VectorStore.Qdrant.URL)
	set("QDRANT_API_KEY", &cfg.VectorStore.Qdrant.APIKey)
	set("QDRANT_COLLECTION_NAME", &cfg.VectorStore.Collection)
	set("LOCAL_QDRANT_PATH", &cfg.VectorStore.LocalPath)
	set("OPENROUTER_MODEL", &cfg.Generator.Model)
	set("APP_HOST", &cfg.Server.Host)
	set("RAGCHAT_LOG_LEVEL", &cfg.LogLevel)
	if v := os.Getenv("APP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: APP_PORT %q is not a number", domain.ErrConfiguration, v)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate reports every invalid setting at once as a configuration error.
// Credentials are checked by the constructors that need them.
func (c *AppConfig) Validate() error {
	var problems []string
	check := func(bad bool, msg string, args ...any) {
		if bad {
			problems = append(problems, fmt.Sprintf(msg, args...))
		}
	}
	check(c.Chunker.ChunkSize <= 0, "chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	check(c.Chunker.Overlap < 0, "chunker.overlap must not be negative, got %d", c.Chunker.Overlap)
	check(c.Embedder.Dimension <= 0, "embedder.dimension must be positive, got %d", c.Embedder.Dimension)
	check(!oneOf(c.Embedder.Type, "cohere", "openai", "hashing"), "unknown embedder type %q", c.Embedder.Type)
	check(!oneOf(c.VectorStore.Type, "auto", "qdrant", "local", "memory"), "unknown vector_store type %q", c.VectorStore.Type)
	check(c.VectorStore.Collection == "", "vector_store.collection is required")
	check(c.Ingest.BatchSize <= 0, "ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	check(c.Ingest.MaxAttempts <= 0, "ingest.max_attempts must be positive, got %d", c.Ingest.MaxAttempts)
	check(c.Ingest.BaseDelaySecs < 0 || c.Ingest.CooldownSecs < 0, "ingest delays must not be negative")
	check(c.Retrieval.TopK <= 0, "retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	check(!oneOf(c.Generator.Type, "openrouter", "local"), "unknown generator type %q", c.Generator.Type)
	check(c.Server.Port <= 0 || c.Server.Port > 65535, "server.port out of range: %d", c.Server.Port)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
}

// ServerAddress is host:port for the HTTP listener.
func (c *AppConfig) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// JournalPath defaults to a file next to the local store.
func (c *AppConfig) JournalPath() string {
	if c.Ingest.JournalPath != "" {
		return c.Ingest.JournalPath
	}
	return filepath.Join(c.VectorStore.LocalPath, "journal.db")
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *AppConfig) BaseDelay() time.Duration { return secs(c.Ingest.BaseDelaySecs) }
func (c *AppConfig) Cooldown() time.Duration  { return secs(c.Ingest.CooldownSecs) }

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

// applyConfigDefaults fills zero values. Overlap defaults only together with
// chunk_size so an explicit overlap of 0 survives.
func applyConfigDefaults(cfg *AppConfig) {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	defInt := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	def(&cfg.LogLevel, "info")
	def(&cfg.DocsPath, "../physical-ai-humanoid-robotics-ts/docs")

	def(&cfg.Embedder.Type, "cohere")
	defInt(&cfg.Embedder.Dimension, 1024)
	def(&cfg.Embedder.Cohere.BaseURL, "https://api.cohere.com")
	def(&cfg.Embedder.Cohere.APIKeyEnv, "COHERE_API_KEY")
	def(&cfg.Embedder.Cohere.Model, "embed-english-v3.0")
	defInt(&cfg.Embedder.Cohere.TimeoutSecs, 60)
	def(&cfg.Embedder.OpenAI.BaseURL, "https://api.openai.com/v1")
	def(&cfg.Embedder.OpenAI.APIKeyEnv, "OPENAI_API_KEY")
	def(&cfg.Embedder.OpenAI.Model, "text-embedding-3-small")
	defInt(&cfg.Embedder.OpenAI.TimeoutSecs, 30)

	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 50
		}
	}

	def(&cfg.VectorStore.Type, "auto")
	def(&cfg.VectorStore.Collection, "physical_ai_robobook")
	def(&cfg.VectorStore.LocalPath, "./local_qdrant_data")
	defInt(&cfg.VectorStore.Qdrant.TimeoutSecs, 15)

	defInt(&cfg.Ingest.BatchSize, 3)
	defInt(&cfg.Ingest.MaxAttempts, 5)
	defInt(&cfg.Ingest.BaseDelaySecs, 5)
	defInt(&cfg.Ingest.CooldownSecs, 3)

	defInt(&cfg.Retrieval.TopK, 5)

	def(&cfg.Generator.Type, "openrouter")
	def(&cfg.Generator.BaseURL, "https://openrouter.ai/api/v1")
	def(&cfg.Generator.APIKeyEnv, "OPENROUTER_API_KEY")
	def(&cfg.Generator.Model, "mistralai/mistral-7b-instruct")
	if cfg.Generator.Temperature == 0 {
		cfg.Generator.Temperature = 0.1
	}
	defInt(&cfg.Generator.MaxTokens, 1000)
	defInt(&cfg.Generator.TimeoutSecs, 60)

	def(&cfg.Server.Host, "0.0.0.0")
	defInt(&cfg.Server.Port, 8000)
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
}

func oneOf(v string, options ...string) bool {
	return slices.Contains(options, v)
}
