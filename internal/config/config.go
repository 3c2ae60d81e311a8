package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port          string
	AllowedOrigin string
	LogLevel      string
	LogFormat     string
	// OpenAI-compatible endpoint used for chat, moderation, narration and embeddings
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	Model           string
	ModerationModel string
	EmbeddingModel  string
	NarrateWithLLM  bool
	PromptsFile     string
	LexiconFile     string
	// Database, or a JSON vendor catalogue when no database is available
	DatabaseURL string
	CatalogFile string
	// Vector index
	VectorBackend    string
	QdrantAddress    string
	QdrantCollection string
	VectorTopK       int
	// Web search fallback
	WebSearchURL        string
	WebSearchAPIKey     string
	WebSearchMaxResults int
	WebSearchRPS        float64
	WebSearchCacheTTL   time.Duration
	// Redis cache for web search results; disabled when RedisAddr is empty
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Inline the vendor_hits payload in the text stream for older clients
	InlineHitsJSON bool
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:                getEnvDefault("PORT", "8080"),
		AllowedOrigin:       getEnvDefault("ALLOWED_ORIGIN", "*"),
		LogLevel:            getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvDefault("LOG_FORMAT", "json"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		Model:               getEnvDefault("OPENAI_MODEL", "gpt-4o-mini"),
		ModerationModel:     getEnvDefault("OPENAI_MODERATION_MODEL", "text-moderation-latest"),
		EmbeddingModel:      getEnvDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		NarrateWithLLM:      getEnvBoolDefault("NARRATE_WITH_LLM", false),
		PromptsFile:         os.Getenv("PROMPTS_FILE"),
		LexiconFile:         os.Getenv("LEXICON_FILE"),
		DatabaseURL:         os.Getenv("DB_URL"),
		CatalogFile:         os.Getenv("VENDOR_CATALOG_FILE"),
		VectorBackend:       strings.ToLower(getEnvDefault("VECTOR_BACKEND", "qdrant")),
		QdrantAddress:       getEnvDefault("QDRANT_ADDRESS", "localhost:6334"),
		QdrantCollection:    getEnvDefault("QDRANT_COLLECTION", "vendors"),
		VectorTopK:          getEnvIntDefault("VECTOR_TOP_K", 20),
		WebSearchURL:        getEnvDefault("WEB_SEARCH_URL", "https://api.tavily.com/search"),
		WebSearchAPIKey:     os.Getenv("WEB_SEARCH_API_KEY"),
		WebSearchMaxResults: getEnvIntDefault("WEB_SEARCH_MAX_RESULTS", 3),
		WebSearchRPS:        getEnvFloatDefault("WEB_SEARCH_RPS", 2),
		WebSearchCacheTTL:   getEnvDurationDefault("WEB_SEARCH_CACHE_TTL", 30*time.Minute),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getEnvIntDefault("REDIS_DB", 0),
		InlineHitsJSON:      getEnvBoolDefault("INLINE_HITS_JSON", false),
	}
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is not set; LLM, moderation and embedding calls will fail until provided")
	}
	return cfg
}

// DatabaseDriver picks the database/sql driver from the DB_URL scheme.
func (c Config) DatabaseDriver() string {
	u := strings.ToLower(c.DatabaseURL)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"),
		strings.Contains(u, "host=") && strings.Contains(u, "dbname="):
		return "postgres"
	default:
		return "sqlite3"
	}
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring non-integer env value")
	}
	return def
}

func getEnvFloatDefault(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring non-numeric env value")
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring invalid duration env value")
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}
