package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ragkb/loader"
	"ragkb/model"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type ServerConfig struct {
	Addr        string `yaml:"addr" validate:"required"`
	BodyLimitMB int    `yaml:"body_limit_mb" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type ChunkingConfig struct {
	Size     int    `yaml:"size" validate:"gte=1"`
	Overlap  int    `yaml:"overlap" validate:"gte=0,ltfield=Size"`
	Encoding string `yaml:"encoding"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" validate:"gte=1"`
}

type ProviderConfig struct {
	Kind              string        `yaml:"kind" validate:"oneof=openai ollama"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	ChatModel         string        `yaml:"chat_model"`
	EmbeddingURL      string        `yaml:"embedding_url"`
	GenerateURL       string        `yaml:"generate_url"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	EmbedConcurrency  int           `yaml:"embed_concurrency" validate:"gte=0"`
}

type IndexConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=memory postgres"`
	Dimensions int    `yaml:"dimensions" validate:"gte=1"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
}

type LoaderConfig struct {
	SourceDir      string        `yaml:"source_dir"`
	ArchiveDir     string        `yaml:"archive_dir"`
	BadDir         string        `yaml:"bad_dir"`
	MonitoringTime time.Duration `yaml:"monitoring_time"`
	DoclingURL     string        `yaml:"docling_url"`
	CropTop        float64       `yaml:"crop_top" validate:"gte=0"`
	CropBottom     float64       `yaml:"crop_bottom" validate:"gte=0"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Provider  ProviderConfig  `yaml:"provider"`
	Index     IndexConfig     `yaml:"index"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Loader    LoaderConfig    `yaml:"loader"`
}

func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8000", BodyLimitMB: 16},
		Log:       LogConfig{Level: "info", Format: "text"},
		Chunking:  ChunkingConfig{Size: loader.DefaultChunkSize, Overlap: loader.DefaultChunkOverlap, Encoding: loader.DefaultEncoding},
		Retrieval: RetrievalConfig{TopK: 4},
		Provider:  ProviderConfig{Kind: ProviderOpenAI, Timeout: 60 * time.Second},
		Index:     IndexConfig{Backend: BackendMemory, Dimensions: 768},
		Postgres:  PostgresConfig{Host: "localhost", Port: "5432", User: "postgres", DBName: "ragkb"},
		Loader:    LoaderConfig{MonitoringTime: 10 * time.Second},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is an error only when required.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return Config{}, err
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	applyProviderDefaults(&cfg.Provider)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

const (
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
	DefaultOllamaChatModel      = "llama3"
)

// applyProviderDefaults fills model names and endpoints for the selected
// provider kind. Gemini is reached through its OpenAI-compatible endpoint.
func applyProviderDefaults(p *ProviderConfig) {
	switch p.Kind {
	case ProviderOpenAI:
		if p.BaseURL == "" {
			p.BaseURL = model.GeminiBaseURL
		}
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = model.GeminiEmbeddingModel
		}
		if p.ChatModel == "" {
			p.ChatModel = model.GeminiChatModel
		}
	case ProviderOllama:
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = DefaultOllamaEmbeddingModel
		}
		if p.ChatModel == "" {
			p.ChatModel = DefaultOllamaChatModel
		}
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s' tag", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables looked up with lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &cfg.Server.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	num("CHUNK_SIZE", &cfg.Chunking.Size)
	num("CHUNK_OVERLAP", &cfg.Chunking.Overlap)
	str("TOKEN_ENCODING", &cfg.Chunking.Encoding)
	num("TOP_K", &cfg.Retrieval.TopK)

	// the Ollama variables switch the provider unless it is set explicitly
	embedURL, _ := lookup("OLLAMA_EMBEDDING_URL")
	llmURL, _ := lookup("LLM_URL")
	if embedURL != "" || llmURL != "" {
		cfg.Provider.Kind = ProviderOllama
	}
	str("PROVIDER_KIND", &cfg.Provider.Kind)
	str("OPENAI_API_KEY", &cfg.Provider.APIKey)
	str("GEMINI_API_KEY", &cfg.Provider.APIKey)
	str("OPENAI_BASE_URL", &cfg.Provider.BaseURL)
	str("OLLAMA_EMBEDDING_URL", &cfg.Provider.EmbeddingURL)
	str("OLLAMA_EMBEDDING_MODEL", &cfg.Provider.EmbeddingModel)
	str("LLM_URL", &cfg.Provider.GenerateURL)
	str("LLM_MODEL", &cfg.Provider.ChatModel)
	dur("PROVIDER_TIMEOUT", &cfg.Provider.Timeout)

	str("INDEX_BACKEND", &cfg.Index.Backend)
	num("EMBEDDING_DIMENSIONS", &cfg.Index.Dimensions)
	str("PG_HOST", &cfg.Postgres.Host)
	str("PG_PORT", &cfg.Postgres.Port)
	str("PG_USER", &cfg.Postgres.User)
	str("PG_PASS", &cfg.Postgres.Password)
	str("PG_DB_NAME", &cfg.Postgres.DBName)

	str("LOADER_SOURCE_DIR", &cfg.Loader.SourceDir)
	str("LOADER_ARCHIVE_DIR", &cfg.Loader.ArchiveDir)
	str("LOADER_BAD_DIR", &cfg.Loader.BadDir)
	dur("LOADER_MONITORING_TIME", &cfg.Loader.MonitoringTime)
	str("DOCLING_URL", &cfg.Loader.DoclingURL)

	return errors.Join(errs...)
}
