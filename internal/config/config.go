package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Portal   PortalConfig
	Rewards  RewardsConfig
	Poll     PollConfig
	Notify   NotifyConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	DBName     string
	SSLMode    string
	TestDBName string // Separate database for testing
}

// AuthConfig holds the authentication configuration for the admin API
type AuthConfig struct {
	JWTSecret string
	AdminKey  string // plain admin API key, bcrypt-hashed at startup
	AdminID   int64  // chat id of the operator
	GroupID   int64  // optional notification group chat id
}

// PortalConfig holds the remote SMS portal configuration
type PortalConfig struct {
	BaseURL      string
	Email        string
	Password     string
	CookiesFile  string
	FetchTimeout time.Duration
}

// RewardsConfig holds the crediting configuration
type RewardsConfig struct {
	EarnPerSMS    decimal.Decimal
	MinWithdrawal decimal.Decimal
}

// PollConfig holds the background task intervals
type PollConfig struct {
	OTPInterval     time.Duration
	SessionInterval time.Duration
}

// NotifyConfig holds the outbound notification queue configuration
type NotifyConfig struct {
	AMQPURL  string
	Exchange string
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			Username:   getEnv("DB_USERNAME", "postgres"),
			Password:   getEnv("DB_PASSWORD", "password"),
			DBName:     getEnv("DB_NAME", "otpearn"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			TestDBName: getEnv("TEST_DB_NAME", "otpearn_test"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "your-secret-key-here"),
			AdminKey:  getEnv("ADMIN_API_KEY", ""),
			AdminID:   getEnvAsInt64("ADMIN_ID", 0),
			GroupID:   getEnvAsInt64("GROUP_ID", 0),
		},
		Portal: PortalConfig{
			BaseURL:      getEnv("PORTAL_BASE_URL", "https://www.ivasms.com"),
			Email:        getEnv("PORTAL_EMAIL", ""),
			Password:     getEnv("PORTAL_PASSWORD", ""),
			CookiesFile:  getEnv("COOKIES_FILE", "cookies.json"),
			FetchTimeout: getEnvAsSeconds("PORTAL_FETCH_TIMEOUT", 20),
		},
		Rewards: RewardsConfig{
			EarnPerSMS:    getEnvAsDecimal("EARN_PER_SMS", "1.0"),
			MinWithdrawal: getEnvAsDecimal("MIN_WITHDRAWAL", "250.0"),
		},
		Poll: PollConfig{
			OTPInterval:     getEnvAsSeconds("OTP_POLL_INTERVAL", 30),
			SessionInterval: getEnvAsSeconds("COOKIE_REFRESH_INTERVAL", 86400),
		},
		Notify: NotifyConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "otpearn.notifications"),
		},
	}
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Second
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, "")
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}
