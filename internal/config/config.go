package config

import (
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Instance InstanceConfig
	Room     RoomConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

type InstanceConfig struct {
	ID string
}

type RoomConfig struct {
	TTL              time.Duration
	DrainGrace       time.Duration
	MaxContentLength int
}

type MetricsConfig struct {
	Interval time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("PORT", ":8080"),
			ReadTimeout:  getDurationOrDefault("READ_TIMEOUT", "15s"),
			WriteTimeout: getDurationOrDefault("WRITE_TIMEOUT", "15s"),
		},
		Redis: RedisConfig{
			Addr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:    getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:          getIntOrDefault("REDIS_DB", 0),
			DialTimeout: getDurationOrDefault("REDIS_DIAL_TIMEOUT", "5s"),
			OpTimeout:   getDurationOrDefault("REDIS_OP_TIMEOUT", "2s"),
		},
		Instance: InstanceConfig{
			ID: getEnvOrDefault("INSTANCE_ID", randomInstanceID()),
		},
		Room: RoomConfig{
			TTL:              getDurationOrDefault("ROOM_TTL", "1h"),
			DrainGrace:       getDurationOrDefault("DRAIN_GRACE", "60s"),
			MaxContentLength: getIntOrDefault("MAX_CONTENT_LENGTH", 100000),
		},
		Metrics: MetricsConfig{
			Interval: getDurationOrDefault("METRICS_INTERVAL", "30s"),
		},
	}
}

// randomInstanceID mirrors the default used when no INSTANCE_ID is set by the
// deployment: a short random hex tag, unique enough to tell fleet members apart.
func randomInstanceID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("Failed to generate instance ID: %v", err)
	}
	return fmt.Sprintf("%x", buf)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}
