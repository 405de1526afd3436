package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration values, overridable from the environment by LoadConfig
var (
	// OpenRouterAPIKey is the API key for OpenRouter
	OpenRouterAPIKey string

	// OpenRouterAPIURL is the endpoint for OpenRouter API
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

	// ReviewerModel answers individual member reviews
	ReviewerModel = "google/gemini-2.5-flash"

	// PanelModel runs panel deliberations
	PanelModel = "anthropic/claude-sonnet-4.5"

	// RosterPath is the YAML roster file
	RosterPath = "data/roster.yaml"

	// DataDir is the directory for session records
	DataDir = "data/sessions"

	// ReviewWorkers bounds concurrent member reviews
	ReviewWorkers = 8

	// PanelWorkers bounds concurrent panel deliberations
	PanelWorkers = 4

	// ReviewBatch switches review collection to one ReviewMany call per member
	ReviewBatch = false

	// Timeouts
	ModelQueryTimeout = 120 * time.Second
	ReviewTimeout     = 5 * time.Minute
	PanelTimeout      = 3 * time.Minute

	// ListenAddr is the HTTP listen address
	ListenAddr = ":8001"

	// CORSAllowedOrigins lists allowed origins; empty allows any localhost origin
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (8MB)
	MaxRequestBodySize int64 = 8 << 20

	// SessionCacheTTL is how long completed sessions stay in memory
	SessionCacheTTL = 10 * time.Minute

	// LogLevel is the zerolog level name
	LogLevel = "info"
)

// LoadConfig loads configuration from .env and environment variables
func LoadConfig() {
	envLocations := []string{
		".env",
		"../.env",
	}

	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Info().Str("path", absPath).Msg("loaded .env")
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		log.Warn().Msg(".env file not found in any expected location")
	}

	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if OpenRouterAPIKey == "" {
		log.Fatal().Msg("OPENROUTER_API_KEY environment variable is required")
	}

	OpenRouterAPIURL = envString("OPENROUTER_API_URL", OpenRouterAPIURL)
	ReviewerModel = envString("REVIEWER_MODEL", ReviewerModel)
	PanelModel = envString("PANEL_MODEL", PanelModel)
	RosterPath = envString("ROSTER_PATH", RosterPath)
	DataDir = envString("DATA_DIR", DataDir)
	ListenAddr = envString("LISTEN_ADDR", ListenAddr)
	LogLevel = envString("LOG_LEVEL", LogLevel)

	ReviewWorkers = envInt("REVIEW_WORKERS", ReviewWorkers)
	PanelWorkers = envInt("PANEL_WORKERS", PanelWorkers)
	ReviewBatch = envBool("REVIEW_BATCH", ReviewBatch)

	ModelQueryTimeout = envDuration("MODEL_QUERY_TIMEOUT", ModelQueryTimeout)
	ReviewTimeout = envDuration("REVIEW_TIMEOUT", ReviewTimeout)
	PanelTimeout = envDuration("PANEL_TIMEOUT", PanelTimeout)
	SessionCacheTTL = envDuration("SESSION_CACHE_TTL", SessionCacheTTL)

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		CORSAllowedOrigins = []string{}
		for _, origin := range strings.Split(corsOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				CORSAllowedOrigins = append(CORSAllowedOrigins, origin)
			}
		}
	}

	log.Info().
		Str("reviewer_model", ReviewerModel).
		Str("panel_model", PanelModel).
		Int("review_workers", ReviewWorkers).
		Int("panel_workers", PanelWorkers).
		Msg("configuration loaded")
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid positive integer, using default")
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean, using default")
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}
