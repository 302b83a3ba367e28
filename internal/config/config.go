package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr       string
	BaseURL    string
	CORSOrigin string
	// Session
	SessionSecret string
	SessionTTL    time.Duration
	RedisURL      string
	// GitHub OAuth
	GitHubClientID     string
	GitHubClientSecret string
	GitHubAPIURL       string
	// License
	LicenseKey string
	// PublicKey is the PEM-encoded RSA public key used for offline license
	// verification. A literal `\n` sequence is accepted in place of newlines
	// so the key can be carried in a single-line env var.
	PublicKey string
	// Cache
	CacheTTL time.Duration
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// Staleness thresholds
	StaleAnswerDays   int
	StaleEvidenceDays int
}

func Load() Config {
	return Config{
		Addr:               getenv("API_ADDR", ":8788"),
		BaseURL:            getenv("ANSWERVAULT_BASE_URL", "http://localhost:8788"),
		CORSOrigin:         getenv("ANSWERVAULT_CORS_ORIGIN", "*"),
		SessionSecret:      getenv("SESSION_SECRET", "answervault-dev-secret"),
		SessionTTL:         time.Duration(getenvInt("SESSION_TTL_SECONDS", 604800)) * time.Second,
		RedisURL:           getenv("REDIS_URL", "redis://localhost:6379/0"),
		GitHubClientID:     getenv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getenv("GITHUB_CLIENT_SECRET", ""),
		GitHubAPIURL:       getenv("GITHUB_API_URL", "https://api.github.com"),
		LicenseKey:         getenv("LICENSE_KEY", ""),
		PublicKey:          normalizeKey(getenv("ANSWERVAULT_PUBLIC_KEY", "")),
		CacheTTL:           time.Duration(getenvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		MeiliURL:           getenv("MEILI_URL", ""),
		MeiliMasterKey:     getenv("MEILI_MASTER_KEY", ""),
		StaleAnswerDays:    getenvInt("STALE_ANSWER_DAYS", 180),
		StaleEvidenceDays:  getenvInt("STALE_EVIDENCE_DAYS", 365),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}
