package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer string // TOTP issuer name shown in authenticator apps

	DatabaseFile    string        // Path to SQLite database file (default: ./signet.db, "memory" for the in-process store)
	KeyDir          string        // Key storage directory (default: ./keys)
	RSABits         int           // RSA key size in bits (default: 2048)
	DigestAlgorithm string        // Default digest algorithm (default: sha256, legacy sha1 allowed)
	OTPTTL          time.Duration // One-time code TTL (default: 300s)
	CodeWidth       int           // One-time code width (default: 6)
	MaxAttempts     int           // Failed verification attempts per session (default: 5)
	TOTPSkew        uint          // Accepted adjacent TOTP time steps (default: 1)
	MaxSigns        int           // Concurrent signing operations (default: GOMAXPROCS)

	MasterKeyPath string // Optional: path to master key file; enables private key encryption at rest
	EncryptKeys   bool   // Encrypt private keys at rest (requires master key material)

	SMTPHost string // Optional: SMTP host for code delivery; empty disables delivery
	SMTPPort int
	SMTPFrom string
	SMTPUser string
	SMTPPass string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	// A local .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	return Config{
		Issuer: getEnvOrDefault("SIGNET_ISSUER", "signet"),

		DatabaseFile:    getEnvOrDefault("SIGNET_DATABASE_FILE", "signet.db"),
		KeyDir:          getEnvOrDefault("SIGNET_KEY_DIR", "keys"),
		RSABits:         getEnvIntOrDefault("SIGNET_RSA_BITS", 2048),
		DigestAlgorithm: getEnvOrDefault("SIGNET_DIGEST_ALGORITHM", "sha256"),
		OTPTTL:          getEnvDurationOrDefault("SIGNET_OTP_TTL", 300*time.Second),
		CodeWidth:       getEnvIntOrDefault("SIGNET_CODE_WIDTH", 6),
		MaxAttempts:     getEnvIntOrDefault("SIGNET_MAX_ATTEMPTS", 5),
		TOTPSkew:        uint(getEnvIntOrDefault("SIGNET_TOTP_SKEW", 1)), // #nosec G115 - skew is a tiny tunable
		MaxSigns:        getEnvIntOrDefault("SIGNET_MAX_CONCURRENT_SIGNS", 0),

		MasterKeyPath: os.Getenv("SIGNET_MASTER_KEY_PATH"),
		EncryptKeys:   getEnvOrDefault("SIGNET_ENCRYPT_KEYS", "false") == "true",

		SMTPHost: os.Getenv("SIGNET_SMTP_HOST"),
		SMTPPort: getEnvIntOrDefault("SIGNET_SMTP_PORT", 587),
		SMTPFrom: os.Getenv("SIGNET_SMTP_FROM"),
		SMTPUser: os.Getenv("SIGNET_SMTP_USER"),
		SMTPPass: os.Getenv("SIGNET_SMTP_PASS"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are taken as seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
