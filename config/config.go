package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config carries process-wide settings. Values come from the
// environment, with a .env file loaded first when present.
type Config struct {
	APIKey    string
	APISecret string

	RestEndpoint   string
	StreamEndpoint string

	MetricsAddr string
	DebugMode   bool
}

func Load() *Config {
	// A missing .env file is fine: plain environment variables win.
	_ = godotenv.Load()

	conf := &Config{
		APIKey:         os.Getenv("BINANCE_API_KEY"),
		APISecret:      os.Getenv("BINANCE_API_SECRET"),
		RestEndpoint:   getEnv("BINANCE_REST_ENDPOINT", "https://api.binance.com"),
		StreamEndpoint: getEnv("BINANCE_STREAM_ENDPOINT", "wss://stream.binance.com:9443/stream"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":8080"),
		DebugMode:      os.Getenv("DEBUG") == "true",
	}

	if conf.DebugMode {
		logrus.SetLevel(logrus.DebugLevel)
	}

	return conf
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
