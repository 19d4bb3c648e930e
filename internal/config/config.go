package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the search engine.
type Config struct {
	PostgreSQL PostgreSQLConfig
	Server     ServerConfig
	Search     SearchConfig
	Ranking    RankingConfig
	Logging    LoggingConfig
	Oracle     OracleConfig
}

// PostgreSQLConfig holds the record-store connection settings.
type PostgreSQLConfig struct {
	DSN                string // full connection string, takes precedence
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
}

// SearchConfig holds search-related knobs.
type SearchConfig struct {
	TopK           int // results returned to the caller
	CandidateLimit int // records fetched from the store before ranking
	MaxLimit       int
}

// RankingConfig holds the composite-score weights.
type RankingConfig struct {
	RatingWeight      float64
	SimilarityWeight  float64
	NeutralSimilarity float64 // used when the ranker produced no similarity
	CacheCapacity     int     // embedding cache entries before a full flush
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string
}

// OracleConfig holds the settings for the external chat and embedding
// oracles (any OpenAI-compatible endpoint).
type OracleConfig struct {
	APIKey              string
	APIBase             string
	ChatModel           string
	ChatTemperature     float64
	ChatMaxTokens       int
	EmbeddingModel      string
	EmbeddingDimensions int
	TimeoutSeconds      int
	Enabled             bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Optional .env file
	_ = godotenv.Load()

	cfg := &Config{
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "hotel_search"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Search: SearchConfig{
			TopK:           getEnvAsInt("SEARCH_TOP_K", 5),
			CandidateLimit: getEnvAsInt("SEARCH_CANDIDATE_LIMIT", 10),
			MaxLimit:       getEnvAsInt("SEARCH_MAX_LIMIT", 50),
		},
		Ranking: RankingConfig{
			RatingWeight:      getEnvAsFloat("RANK_WEIGHT_RATING", 0.6),
			SimilarityWeight:  getEnvAsFloat("RANK_WEIGHT_SIMILARITY", 0.4),
			NeutralSimilarity: getEnvAsFloat("RANK_NEUTRAL_SIMILARITY", 0.6),
			CacheCapacity:     getEnvAsInt("RANK_EMBEDDING_CACHE_CAPACITY", 1000),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Oracle: OracleConfig{
			APIKey:              getEnv("ORACLE_API_KEY", ""),
			APIBase:             getEnv("ORACLE_API_BASE", "https://api.openai.com/v1"),
			ChatModel:           getEnv("ORACLE_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature:     getEnvAsFloat("ORACLE_CHAT_TEMPERATURE", 0.0),
			ChatMaxTokens:       getEnvAsInt("ORACLE_CHAT_MAX_TOKENS", 64),
			EmbeddingModel:      getEnv("ORACLE_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getEnvAsInt("ORACLE_EMBEDDING_DIMENSIONS", 384),
			TimeoutSeconds:      getEnvAsInt("ORACLE_TIMEOUT", 10),
			Enabled:             getEnv("ORACLE_API_KEY", "") != "",
		},
	}

	return cfg, nil
}

// GetPostgreSQLDSN returns the record-store connection string.
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}
