package config // package config loads application configuration from environment variables

import (
	"log"  // log is used to report configuration errors and halt execution
	"os"   // os provides access to environment variables
	"time" // token lifetimes

	"github.com/joho/godotenv" // optional .env file support for local runs
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	StoreDriver    string // "mysql" (default) or "memory"
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
}

// LoadDotEnv loads variables from the given files (".env" when none are
// given) without overriding variables that are already set.  A missing file
// is not an error; production deployments configure the environment
// directly.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Printf("config: could not load %s: %v", f, err)
		}
	}
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database settings
// are only required with the mysql store driver.
func Load() Config {
	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           envStr("APP_PORT", "8080"),
		StoreDriver:    envStr("STORE_DRIVER", StoreMySQL),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 14),
		BcryptCost:     envInt("BCRYPT_COST", 12),
	}
	switch cfg.StoreDriver {
	case StoreMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	case StoreMemory:
	default:
		log.Fatalf("invalid STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreMySQL, StoreMemory)
	}
	if cfg.AccessTTLMin < 1 {
		log.Fatalf("invalid ACCESS_TOKEN_TTL_MIN: %d", cfg.AccessTTLMin)
	}
	if cfg.RefreshTTLDays < 1 {
		log.Fatalf("invalid REFRESH_TOKEN_TTL_DAYS: %d", cfg.RefreshTTLDays)
	}
	return cfg
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTTLDays) * 24 * time.Hour }

// IsDev reports whether the service runs in development mode.
func (c Config) IsDev() bool { return c.Env == "dev" || c.Env == "development" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
