package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider  string
	LLMModel     string
	GeminiAPIKey string
	OpenAIAPIKey string

	DatabaseURL string
	HTTPPort    string
	LogLevel    string

	JWTSecret   string
	JWTTTLHours int
	BcryptCost  int

	DiffusionURL     string
	DiffusionTimeout time.Duration
	ControlNetModel  string

	CatalogFile string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitEnabled   bool
	RateLimitCapacity  int
	RateLimitRefillSec int

	AMQPURL    string
	EventQueue string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		LLMModel:     getEnv("LLM_MODEL", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		DatabaseURL: getEnv("DATABASE_URL", "shots_app.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTTTLHours: getEnvAsInt("JWT_TTL_HOURS", 24),
		BcryptCost:  getEnvAsInt("BCRYPT_COST", 10),

		DiffusionURL:     getEnv("DIFFUSION_API_URL", "http://127.0.0.1:7860"),
		DiffusionTimeout: getEnvAsDuration("DIFFUSION_TIMEOUT", 5*time.Minute),
		ControlNetModel:  getEnv("CONTROLNET_MODEL", "control_v11p_sd15_canny"),

		CatalogFile: getEnv("CATALOG_FILE", ""),

		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		RateLimitEnabled:   getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitCapacity:  getEnvAsInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefillSec: getEnvAsInt("RATE_LIMIT_REFILL_SECONDS", 6),

		AMQPURL:    getEnv("AMQP_URL", ""),
		EventQueue: getEnv("EVENT_QUEUE", "shots.events"),
	}

	switch AppConfig.LLMProvider {
	case "gemini":
		if AppConfig.GeminiAPIKey == "" {
			log.Fatal("GEMINI_API_KEY environment variable is required")
		}
	case "openai":
		if AppConfig.OpenAIAPIKey == "" {
			log.Fatal("OPENAI_API_KEY environment variable is required when LLM_PROVIDER=openai")
		}
	default:
		log.Fatalf("unsupported LLM_PROVIDER %q (want gemini or openai)", AppConfig.LLMProvider)
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
