package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	DatabaseURL   string
	DBUser        string
	DBPassword    string
	DBName        string
	DBHost        string
	DBPort        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisURL      string

	BotToken    string
	BotUsername string
	WebAppURL   string

	EnergyCap      int
	PointsPerTap   int
	DailyTapCap    int
	ReferralReward int

	LeaderboardSize     int
	LeaderboardCacheTTL time.Duration

	AllowGuest              bool
	RequireVerifiedIdentity bool

	PowerupNotifyInterval time.Duration

	YookassaShopID    string
	YookassaKey       string
	YookassaReturnURL string
	AllowedYooIp      []string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "tapcoin"),
		DBHost:        getEnv("DB_HOST", ""),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisURL:      getEnv("REDIS_URL", ""),

		BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", ""),
		WebAppURL:   getEnv("WEBAPP_URL", ""),

		EnergyCap:      getEnvInt("ENERGY_CAP", 50),
		PointsPerTap:   getEnvInt("POINTS_PER_TAP", 1),
		DailyTapCap:    getEnvInt("DAILY_TAP_CAP", 5000),
		ReferralReward: getEnvInt("REFERRAL_REWARD", 800),

		LeaderboardSize:     getEnvInt("LEADERBOARD_SIZE", 100),
		LeaderboardCacheTTL: getEnvDuration("LEADERBOARD_CACHE_TTL", 10*time.Second),

		AllowGuest:              getEnvBool("ALLOW_GUEST", true),
		RequireVerifiedIdentity: getEnvBool("REQUIRE_VERIFIED_IDENTITY", false),

		PowerupNotifyInterval: getEnvDuration("POWERUP_NOTIFY_INTERVAL", time.Hour),

		YookassaShopID:    getEnv("YOOKASSA_SHOP_ID", ""),
		YookassaKey:       getEnv("YOOKASSA_SECRET_KEY", ""),
		YookassaReturnURL: getEnv("YOOKASSA_RETURN_URL", ""),
		AllowedYooIp: []string{
			"185.71.76.0/27",
			"185.71.77.0/27",
			"77.75.153.0/25",
			"77.75.156.224/28",
			"77.75.154.128/25",
			"2a02:5180::/32",
		},
	}
}

// Validate reports settings the process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.DSN() == "" {
		errs = append(errs, errors.New("DATABASE_URL or DB_HOST is required"))
	}
	if c.EnergyCap <= 0 {
		errs = append(errs, fmt.Errorf("ENERGY_CAP must be positive, got %d", c.EnergyCap))
	}
	return errors.Join(errs...)
}

// DSN returns the postgres connection string, or "" when no store is configured.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBHost == "" {
		return ""
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisEnabled() bool {
	return c.RedisURL != "" || c.RedisHost != ""
}

func (c *Config) PaymentsEnabled() bool {
	return c.YookassaShopID != "" && c.YookassaKey != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %t", key, value, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
