package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"document-chat/internal/models"

	"gopkg.in/yaml.v3"
)

const (
	BackendPGVector = "pgvector"
	BackendFlat     = "flat"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	ChatLLM  LLMConfig      `yaml:"chat_llm"`
	EmbedLLM EmbedConfig    `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Storage  StorageConfig  `yaml:"storage"`
}

type DatabaseConfig struct {
	// Driver is "pgdriver" (bun's native driver) or "pq".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	Debug    bool   `yaml:"debug"`
}

// DSN builds a postgres:// connection string with user and password escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type LLMConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	Key      string        `yaml:"key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type EmbedConfig struct {
	LLMConfig    `yaml:",inline"`
	PrimaryPath  string `yaml:"primary_path"`
	FallbackPath string `yaml:"fallback_path"`
	Dimension    int    `yaml:"dimension"`
}

type RAGConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	OverlapSentences int    `yaml:"overlap_sentences"`
	TopK             int    `yaml:"top_k"`
	CaptionTopK      int    `yaml:"caption_top_k"`
	Backend          string `yaml:"backend"`
	IVFFlatLists     int    `yaml:"ivfflat_lists"`
	// StrictContext turns context retrieval failures during Ask into hard errors
	// instead of answering without context.
	StrictContext     bool          `yaml:"strict_context"`
	ExtractionTimeout time.Duration `yaml:"extraction_timeout"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

func (s StorageConfig) ImagesDir() string {
	return filepath.Join(s.DataDir, "images")
}

// LoadConfig reads the yaml file at path, expands ${VAR} references and fills defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := newConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration matching a local Ollama + Postgres setup.
func Default() *Config {
	cfg := newConfig()
	cfg.ApplyDefaults()
	return cfg
}

// newConfig presets the fields whose zero value is a meaningful setting, so
// that an explicit zero in the file survives decoding.
func newConfig() *Config {
	return &Config{RAG: RAGConfig{OverlapSentences: models.DefaultOverlapSentences}}
}

func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	db := &c.Database
	setDefault(&db.Driver, "pgdriver")
	setDefault(&db.Host, "localhost")
	setDefault(&db.Port, "5432")
	setDefault(&db.User, "postgres")
	setDefault(&db.Password, "postgres")
	setDefault(&db.Name, "docAgent")
	setDefault(&db.SSLMode, "disable")

	setDefault(&c.ChatLLM.Provider, ProviderOllama)
	setDefault(&c.ChatLLM.BaseURL, "http://localhost:11434")
	setDefault(&c.ChatLLM.Model, models.DefaultChatModel)
	if c.ChatLLM.Timeout == 0 {
		c.ChatLLM.Timeout = 600 * time.Second
	}

	e := &c.EmbedLLM
	setDefault(&e.Provider, ProviderOllama)
	setDefault(&e.BaseURL, c.ChatLLM.BaseURL)
	setDefault(&e.Model, models.DefaultEmbeddingModel)
	setDefault(&e.PrimaryPath, "/api/embed")
	setDefault(&e.FallbackPath, "/api/embeddings")
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}
	if e.Dimension == 0 {
		e.Dimension = models.EmbeddingDimension
	}

	r := &c.RAG
	if r.ChunkSize <= 0 {
		r.ChunkSize = models.DefaultChunkSize
	}
	if r.TopK <= 0 {
		r.TopK = models.DefaultTopK
	}
	if r.CaptionTopK <= 0 {
		r.CaptionTopK = models.DefaultCaptionTopK
	}
	if r.IVFFlatLists <= 0 {
		r.IVFFlatLists = models.IVFFlatIndexLists
	}
	if r.ExtractionTimeout == 0 {
		r.ExtractionTimeout = 660 * time.Second
	}
	setDefault(&r.Backend, BackendPGVector)

	setDefault(&c.Storage.DataDir, "./data")
}

func (c *Config) Validate() error {
	switch c.RAG.Backend {
	case BackendPGVector, BackendFlat:
	default:
		return fmt.Errorf("unknown rag backend %q", c.RAG.Backend)
	}
	if c.RAG.OverlapSentences < 0 {
		return fmt.Errorf("rag overlap_sentences must not be negative, got %d", c.RAG.OverlapSentences)
	}
	switch c.Database.Driver {
	case "pgdriver", "pq":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	for _, p := range []string{c.ChatLLM.Provider, c.EmbedLLM.Provider} {
		if p != ProviderOllama && p != ProviderOpenAI {
			return fmt.Errorf("unknown llm provider %q", p)
		}
	}
	return nil
}

// EnsureDirectories creates the data and image directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(c.Storage.ImagesDir(), 0o755)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
