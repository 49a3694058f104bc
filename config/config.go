package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds every setting the server reads from the environment.
// MongoClient is nil until Connect is called (or when StoreDriver is "memory").
type Config struct {
	Env         string
	Port        string
	LogDir      string
	StoreDriver string // mongo | memory

	MongoURI    string
	DBName      string
	MongoClient *mongo.Client

	JWTSecret   string
	JWTTTL      time.Duration
	CORSOrigins []string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	ZeptoAPIURL string
	ZeptoAPIKey string
	EmailFrom   string

	OpenAIAPIKey string

	ChatRatePerMinute int

	// Location decides what "today" and "this weekend" mean for event filters.
	Location *time.Location
}

// Load reads .env (if present) then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		LogDir:      os.Getenv("LOG_DIR"),
		StoreDriver: getEnv("STORE_DRIVER", "mongo"),

		MongoURI: getEnv("MONGO_URI", "mongodb://127.0.0.1:27017/?replicaSet=rs0"),
		DBName:   getEnv("DB_NAME", "haojiu"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		ZeptoAPIURL: os.Getenv("ZEPTO_API_URL"),
		ZeptoAPIKey: os.Getenv("ZEPTO_API_KEY"),
		EmailFrom:   os.Getenv("EMAIL_FROM"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
	}

	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "72h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	cfg.JWTTTL = ttl

	rpm, err := strconv.Atoi(getEnv("CHAT_RATE_PER_MINUTE", "30"))
	if err != nil || rpm <= 0 {
		return nil, fmt.Errorf("invalid CHAT_RATE_PER_MINUTE %q", os.Getenv("CHAT_RATE_PER_MINUTE"))
	}
	cfg.ChatRatePerMinute = rpm

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Taipei"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if len(cfg.CORSOrigins) == 0 {
		return nil, fmt.Errorf("CORS_ORIGINS must list at least one origin")
	}
	if cfg.StoreDriver != "mongo" && cfg.StoreDriver != "memory" {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret"
	}
	return cfg, nil
}

// Connect opens the Mongo client and pings it.
func (c *Config) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.MongoURI))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo ping: %w", err)
	}
	c.MongoClient = client
	return nil
}

// Disconnect closes the Mongo client if one is open.
func (c *Config) Disconnect(ctx context.Context) {
	if c.MongoClient != nil {
		_ = c.MongoClient.Disconnect(ctx)
	}
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func (c *Config) MailEnabled() bool {
	return c.ZeptoAPIURL != "" && c.ZeptoAPIKey != "" && c.EmailFrom != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
