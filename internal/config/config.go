package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (booking sessions)
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// PayHere gateway configuration
	PayHere PayHereConfig

	// Slot reservation configuration
	Reservation ReservationConfig

	// SMS configuration
	SMS SMSConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	EnableRequestLog bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds the booking session store configuration
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PayHereConfig holds PayHere checkout configuration
type PayHereConfig struct {
	Mode                string // "sandbox" or "live"
	MerchantID          string
	MerchantSecret      string // SECRET - never expose to client
	Currency            string
	SandboxScriptURL    string
	ProductionScriptURL string
	ReturnURL           string
	CancelURL           string
	NotifyURL           string
	HashEndpoint        string        // optional remote hash service; empty means mint locally
	HashAuthToken       string        // bearer token for HashEndpoint
	ScriptProbeTimeout  time.Duration // per-URL timeout when probing the checkout script
	ResultTimeout       time.Duration // how long a started payment waits for a callback
}

// ReservationConfig holds slot hold configuration
type ReservationConfig struct {
	HoldSeconds  int
	TickInterval time.Duration
	SweepSpec    string // cron spec for the hold expiry sweeper
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" or "production" - dev only logs messages
	Method   string // "url" or "api_v2"
	APIURL   string
	ESMSQK   string // Dialog URL message key (for URL method)
	Username string
	Password string
	Mask     string // Dialog SMS mask/source address
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	Burst         int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),

			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			SessionTTL: time.Duration(getEnvAsInt("BOOKING_SESSION_TTL_SECONDS", 7200)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		PayHere: PayHereConfig{
			Mode:                getEnv("PAYHERE_MODE", "sandbox"),
			MerchantID:          getEnv("PAYHERE_MERCHANT_ID", ""),
			MerchantSecret:      getEnv("PAYHERE_MERCHANT_SECRET", ""),
			Currency:            getEnv("PAYHERE_CURRENCY", "LKR"),
			SandboxScriptURL:    getEnv("PAYHERE_SANDBOX_SCRIPT_URL", "https://sandbox.payhere.lk/lib/payhere.js"),
			ProductionScriptURL: getEnv("PAYHERE_SCRIPT_URL", "https://www.payhere.lk/lib/payhere.js"),
			ReturnURL:           getEnv("PAYHERE_RETURN_URL", ""),
			CancelURL:           getEnv("PAYHERE_CANCEL_URL", ""),
			NotifyURL:           getEnv("PAYHERE_NOTIFY_URL", ""),
			HashEndpoint:        getEnv("PAYHERE_HASH_ENDPOINT", ""),
			HashAuthToken:       getEnv("PAYHERE_HASH_AUTH_TOKEN", ""),
			ScriptProbeTimeout:  time.Duration(getEnvAsInt("PAYHERE_SCRIPT_TIMEOUT_SECONDS", 10)) * time.Second,
			ResultTimeout:       time.Duration(getEnvAsInt("PAYHERE_RESULT_TIMEOUT_SECONDS", 1800)) * time.Second,
		},
		Reservation: ReservationConfig{
			HoldSeconds:  getEnvAsInt("RESERVATION_HOLD_SECONDS", 900),
			TickInterval: time.Duration(getEnvAsInt("RESERVATION_TICK_MS", 1000)) * time.Millisecond,
			SweepSpec:    getEnv("RESERVATION_SWEEP_SPEC", "@every 1m"),
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),
			Method:   getEnv("DIALOG_SMS_METHOD", "url"),
			APIURL:   getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			ESMSQK:   getEnv("DIALOG_SMS_ESMSQK", ""),
			Username: getEnv("DIALOG_SMS_USERNAME", ""),
			Password: getEnv("DIALOG_SMS_PASSWORD", ""),
			Mask:     getEnv("DIALOG_SMS_MASK", ""),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			Burst:         getEnvAsInt("RATE_LIMIT_BURST", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.PayHere.MerchantID == "" {
		return fmt.Errorf("PAYHERE_MERCHANT_ID is required")
	}

	// Notify verification needs the secret even when minting is remote
	if c.PayHere.MerchantSecret == "" {
		return fmt.Errorf("PAYHERE_MERCHANT_SECRET is required")
	}

	if c.PayHere.HashEndpoint != "" {
		if err := c.validateHashEndpoint(); err != nil {
			return err
		}
	}

	if c.PayHere.Mode != "sandbox" && c.PayHere.Mode != "live" {
		return fmt.Errorf("invalid PAYHERE_MODE: %s (must be 'sandbox' or 'live')", c.PayHere.Mode)
	}

	if c.Reservation.HoldSeconds <= 0 {
		return fmt.Errorf("RESERVATION_HOLD_SECONDS must be positive")
	}

	if c.Reservation.TickInterval <= 0 {
		return fmt.Errorf("RESERVATION_TICK_MS must be positive")
	}

	if c.SMS.Mode == "production" {
		switch c.SMS.Method {
		case "url":
			if c.SMS.ESMSQK == "" {
				return fmt.Errorf("DIALOG_SMS_ESMSQK is required for URL method in production mode")
			}
		case "api_v2":
			if c.SMS.Username == "" || c.SMS.Password == "" {
				return fmt.Errorf("DIALOG_SMS_USERNAME and DIALOG_SMS_PASSWORD are required for API v2 method in production mode")
			}
		default:
			return fmt.Errorf("invalid SMS method: %s (must be 'url' or 'api_v2')", c.SMS.Method)
		}
	}

	return nil
}

// HashRoute is where this service serves hash minting
const HashRoute = "/api/v1/payments/hash"

// validateHashEndpoint rejects a remote signer that resolves back to this service
func (c *Config) validateHashEndpoint() error {
	endpoint, err := url.Parse(c.PayHere.HashEndpoint)
	if err != nil || endpoint.Host == "" || (endpoint.Scheme != "http" && endpoint.Scheme != "https") {
		return fmt.Errorf("invalid PAYHERE_HASH_ENDPOINT: %s", c.PayHere.HashEndpoint)
	}

	port := endpoint.Port()
	if port == "" {
		port = "80"
		if endpoint.Scheme == "https" {
			port = "443"
		}
	}

	switch endpoint.Hostname() {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		if port == c.Server.Port && strings.TrimSuffix(endpoint.Path, "/") == HashRoute {
			return fmt.Errorf("PAYHERE_HASH_ENDPOINT points at this service: %s", c.PayHere.HashEndpoint)
		}
	}

	return nil
}

// ScriptURLs returns the checkout script URLs in load order
func (p PayHereConfig) ScriptURLs() (primary, fallback string) {
	if p.Mode == "live" {
		return p.ProductionScriptURL, p.SandboxScriptURL
	}
	return p.SandboxScriptURL, p.ProductionScriptURL
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
