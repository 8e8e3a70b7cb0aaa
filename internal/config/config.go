package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	ServiceName  string
	Env          string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	PaypackBaseURL      string
	PaypackClientID     string
	PaypackClientSecret string
	PaypackEnvironment  string

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Load reads .env (when present) then the environment. Empty PostgresDSN,
// RedisAddr or KafkaBrokers switch the corresponding component to its
// in-memory or disabled mode, which keeps local runs dependency-free.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		ServiceName:  getenv("SERVICE_NAME", "soko-checkout"),
		Env:          getenv("ENV", "dev"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "checkout.events"),

		PaypackBaseURL:      getenv("PAYPACK_BASE_URL", "https://payments.paypack.rw/api"),
		PaypackClientID:     os.Getenv("PAYPACK_CLIENT_ID"),
		PaypackClientSecret: os.Getenv("PAYPACK_CLIENT_SECRET"),
		PaypackEnvironment:  getenv("PAYPACK_ENVIRONMENT", "development"),

		PollInterval: getduration("CHECKOUT_POLL_INTERVAL", time.Second),
		PollTimeout:  getduration("CHECKOUT_POLL_TIMEOUT", 20*time.Second),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
