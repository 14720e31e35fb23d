package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every environment switch the agent understands. All fields
// have working defaults except credentials, which stay empty when unset.
type Config struct {
	APIAddress string

	PrometheusURL      string
	PrometheusUser     string
	PrometheusPassword string

	// Global safety gates. Both default to the safe side: healing off,
	// dry-run on. They gate every destructive dispatch fleet-wide,
	// independent of per-rule Enabled flags.
	HealingEnabled bool
	DryRun         bool

	PlaybookPath string
	DatabaseURL  string
	GeminiAPIKey string
	LogLevel     string
	LogJSON      bool

	// Leader election identity and lease parameters.
	PodName       string
	Namespace     string
	LeaseName     string
	LeaseDuration time.Duration
	RenewDeadline time.Duration
	RetryPeriod   time.Duration

	EvalInterval   time.Duration
	ErrorBackoff   time.Duration
	CooldownWindow time.Duration
	RCATimeout     time.Duration
}

// FromEnv builds a Config from the process environment.
func FromEnv() Config {
	hostname, _ := os.Hostname()

	return Config{
		APIAddress:         getenv("API_ADDRESS", ":8080"),
		PrometheusURL:      getenv("PROMETHEUS_URL", "http://prometheus:9090"),
		PrometheusUser:     os.Getenv("PROMETHEUS_USER"),
		PrometheusPassword: os.Getenv("PROMETHEUS_PASSWORD"),
		HealingEnabled:     getbool("HEALING_ENABLED", false),
		DryRun:             getbool("DRY_RUN", true),
		PlaybookPath:       getenv("PLAYBOOK_PATH", "/app/healing-playbook.yaml"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogJSON:            getbool("LOG_JSON", true),
		PodName:            getenv("POD_NAME", hostname),
		Namespace:          getenv("NAMESPACE", "default"),
		LeaseName:          getenv("LEASE_NAME", "remedy-leader-election-lock"),
		LeaseDuration:      getduration("LEASE_DURATION", 15*time.Second),
		RenewDeadline:      getduration("RENEW_DEADLINE", 10*time.Second),
		RetryPeriod:        getduration("RETRY_PERIOD", 2*time.Second),
		EvalInterval:       getduration("EVAL_INTERVAL", 30*time.Second),
		ErrorBackoff:       getduration("ERROR_BACKOFF", 60*time.Second),
		CooldownWindow:     getduration("COOLDOWN_WINDOW", 15*time.Minute),
		RCATimeout:         getduration("RCA_TIMEOUT", 60*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getduration(key string, fallback time.Duration) time.Duration {
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
