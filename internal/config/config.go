package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/rag-chatbot/internal/infrastructure/resilience"
)

type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	RAGTopK             int  `yaml:"rag_top_k"`
	RAGWebSearchEnabled bool `yaml:"rag_web_search_enabled"`
	RAGSummarizeContext bool `yaml:"rag_summarize_context"`
	RAGSummarySentences int  `yaml:"rag_summary_sentences"`

	IndexHashMode string `yaml:"index_hash_mode"`

	VectorBackend    string `yaml:"vector_backend"`
	VectorPersistDir string `yaml:"vector_persist_dir"`
	VectorCollection string `yaml:"vector_collection"`
	QdrantURL        string `yaml:"qdrant_url"`

	LLMProvider      string `yaml:"llm_provider"`
	OllamaURL        string `yaml:"ollama_url"`
	OllamaGenModel   string `yaml:"ollama_gen_model"`
	OllamaEmbedModel string `yaml:"ollama_embed_model"`
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIChatModel  string `yaml:"openai_chat_model"`
	OpenAIEmbedModel string `yaml:"openai_embed_model"`

	SearxNGURL          string        `yaml:"searxng_url"`
	WebSearchTimeout    time.Duration `yaml:"web_search_timeout"`
	WebSearchMaxResults int           `yaml:"web_search_max_results"`

	LoaderEncoding    string        `yaml:"loader_encoding"`
	LoaderHTTPTimeout time.Duration `yaml:"loader_http_timeout"`

	UploadDir   string `yaml:"upload_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	Resilience ResilienceConfig `yaml:"resilience"`

	APIRateLimitRPS   float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst int     `yaml:"api_rate_limit_burst"`
	APIMaxInFlight    int     `yaml:"api_max_in_flight"`

	WorkerMetricsPort string `yaml:"worker_metrics_port"`
}

type ResilienceConfig struct {
	RetryMaxAttempts    int           `yaml:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `yaml:"retry_max_backoff"`
	RetryMultiplier     float64       `yaml:"retry_multiplier"`

	BreakerEnabled          bool          `yaml:"breaker_enabled"`
	BreakerMinRequests      int           `yaml:"breaker_min_requests"`
	BreakerFailureRatio     float64       `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout      time.Duration `yaml:"breaker_open_timeout"`
	BreakerHalfOpenMaxCalls int           `yaml:"breaker_half_open_max_calls"`
}

// Executor converts the knobs into the executor's own config type.
func (c ResilienceConfig) Executor() resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        c.RetryMaxAttempts,
		RetryInitialBackoff:     c.RetryInitialBackoff,
		RetryMaxBackoff:         c.RetryMaxBackoff,
		RetryMultiplier:         c.RetryMultiplier,
		Attempts:                resilience.DefaultAttempts(),
		BreakerEnabled:          c.BreakerEnabled,
		BreakerMinRequests:      uint32(max(c.BreakerMinRequests, 0)),
		BreakerFailureRatio:     c.BreakerFailureRatio,
		BreakerOpenTimeout:      c.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(c.BreakerHalfOpenMaxCalls, 0)),
	}
}

func Defaults() Config {
	res := resilience.DefaultConfig()
	return Config{
		APIPort:  "8080",
		LogLevel: "info",

		ChunkSize:    1000,
		ChunkOverlap: 200,

		RAGTopK:             4,
		RAGSummarySentences: 3,

		IndexHashMode: "content",

		VectorBackend:    "sqlite",
		VectorPersistDir: "./data/vectordb",
		VectorCollection: "PDFRAG",
		QdrantURL:        "http://localhost:6333",

		LLMProvider:      "ollama",
		OllamaURL:        "http://localhost:11434",
		OllamaGenModel:   "llama3.1:8b",
		OllamaEmbedModel: "nomic-embed-text",
		OpenAIBaseURL:    "https://api.openai.com/v1",
		OpenAIChatModel:  "gpt-3.5-turbo",
		OpenAIEmbedModel: "text-embedding-ada-002",

		SearxNGURL:          "http://localhost:8888",
		WebSearchTimeout:    10 * time.Second,
		WebSearchMaxResults: 5,

		LoaderEncoding:    "utf-8",
		LoaderHTTPTimeout: 30 * time.Second,

		UploadDir:   "./uploads",
		NATSSubject: "documents.index",

		Resilience: ResilienceConfig{
			RetryMaxAttempts:        res.RetryMaxAttempts,
			RetryInitialBackoff:     res.RetryInitialBackoff,
			RetryMaxBackoff:         res.RetryMaxBackoff,
			RetryMultiplier:         res.RetryMultiplier,
			BreakerEnabled:          res.BreakerEnabled,
			BreakerMinRequests:      int(res.BreakerMinRequests),
			BreakerFailureRatio:     res.BreakerFailureRatio,
			BreakerOpenTimeout:      res.BreakerOpenTimeout,
			BreakerHalfOpenMaxCalls: int(res.BreakerHalfOpenMaxCalls),
		},

		APIRateLimitRPS:   20,
		APIRateLimitBurst: 40,
		APIMaxInFlight:    64,

		WorkerMetricsPort: "9090",
	}
}

// Load resolves configuration in three layers: built-in defaults, the YAML
// file named by RAG_CONFIG_FILE, then environment variables. An optional
// .env file is read first and never overrides variables already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("RAG_CONFIG_FILE")); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.APIPort = mustEnv("API_PORT", cfg.APIPort)
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.ChunkSize = mustEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = mustEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)

	cfg.RAGTopK = mustEnvInt("RAG_TOP_K", cfg.RAGTopK)
	cfg.RAGWebSearchEnabled = mustEnvBool("RAG_WEB_SEARCH_ENABLED", cfg.RAGWebSearchEnabled)
	cfg.RAGSummarizeContext = mustEnvBool("RAG_SUMMARIZE_CONTEXT", cfg.RAGSummarizeContext)
	cfg.RAGSummarySentences = mustEnvInt("RAG_SUMMARY_SENTENCES", cfg.RAGSummarySentences)

	cfg.IndexHashMode = mustEnv("INDEX_HASH_MODE", cfg.IndexHashMode)

	cfg.VectorBackend = mustEnv("VECTOR_BACKEND", cfg.VectorBackend)
	cfg.VectorPersistDir = mustEnv("VECTOR_PERSIST_DIR", cfg.VectorPersistDir)
	cfg.VectorCollection = mustEnv("VECTOR_COLLECTION", cfg.VectorCollection)
	cfg.QdrantURL = mustEnv("QDRANT_URL", cfg.QdrantURL)

	cfg.LLMProvider = mustEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.OllamaURL = mustEnv("OLLAMA_URL", cfg.OllamaURL)
	cfg.OllamaGenModel = mustEnv("OLLAMA_GEN_MODEL", cfg.OllamaGenModel)
	cfg.OllamaEmbedModel = mustEnv("OLLAMA_EMBED_MODEL", cfg.OllamaEmbedModel)
	cfg.OpenAIBaseURL = mustEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIAPIKey = mustEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIChatModel = mustEnv("OPENAI_CHAT_MODEL", cfg.OpenAIChatModel)
	cfg.OpenAIEmbedModel = mustEnv("OPENAI_EMBED_MODEL", cfg.OpenAIEmbedModel)

	cfg.SearxNGURL = mustEnv("SEARXNG_URL", cfg.SearxNGURL)
	cfg.WebSearchTimeout = mustEnvDuration("WEB_SEARCH_TIMEOUT", cfg.WebSearchTimeout)
	cfg.WebSearchMaxResults = mustEnvInt("WEB_SEARCH_MAX_RESULTS", cfg.WebSearchMaxResults)

	cfg.LoaderEncoding = mustEnv("LOADER_ENCODING", cfg.LoaderEncoding)
	cfg.LoaderHTTPTimeout = mustEnvDuration("LOADER_HTTP_TIMEOUT", cfg.LoaderHTTPTimeout)

	cfg.UploadDir = mustEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.PostgresDSN = mustEnv("POSTGRES_DSN", cfg.PostgresDSN)

	cfg.NATSURL = mustEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = mustEnv("NATS_SUBJECT", cfg.NATSSubject)

	r := &cfg.Resilience
	r.RetryMaxAttempts = mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", r.RetryMaxAttempts)
	r.RetryInitialBackoff = mustEnvDuration("RESILIENCE_RETRY_INITIAL_BACKOFF", r.RetryInitialBackoff)
	r.RetryMaxBackoff = mustEnvDuration("RESILIENCE_RETRY_MAX_BACKOFF", r.RetryMaxBackoff)
	r.RetryMultiplier = mustEnvFloat("RESILIENCE_RETRY_MULTIPLIER", r.RetryMultiplier)
	r.BreakerEnabled = mustEnvBool("RESILIENCE_BREAKER_ENABLED", r.BreakerEnabled)
	r.BreakerMinRequests = mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", r.BreakerMinRequests)
	r.BreakerFailureRatio = mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", r.BreakerFailureRatio)
	r.BreakerOpenTimeout = mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", r.BreakerOpenTimeout)
	r.BreakerHalfOpenMaxCalls = mustEnvInt("RESILIENCE_BREAKER_HALF_OPEN_MAX_CALLS", r.BreakerHalfOpenMaxCalls)

	cfg.APIRateLimitRPS = mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS)
	cfg.APIRateLimitBurst = mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst)
	cfg.APIMaxInFlight = mustEnvInt("API_MAX_IN_FLIGHT", cfg.APIMaxInFlight)

	cfg.WorkerMetricsPort = mustEnv("WORKER_METRICS_PORT", cfg.WorkerMetricsPort)
}

func (c Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	switch c.VectorBackend {
	case "sqlite", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}
	switch c.IndexHashMode {
	case "content", "locator":
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_HASH_MODE %q", c.IndexHashMode))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must not be negative, got %d", c.ChunkOverlap))
	}
	if c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize))
	}
	if c.LLMProvider == "openai" && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
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
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
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
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
