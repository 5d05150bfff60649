package config

import (
	"os"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	PostgresDSN   string
	RedisURL      string
	JWTSigningKey string
}

// DefaultTxTimeout bounds engine transactions that arrive without a deadline.
var DefaultTxTimeout = 5 * time.Second

// FromEnv builds a Server config from environment variables so main stays
// lean. Empty PostgresDSN / RedisURL select the in-memory backends.
func FromEnv() Server {
	addr := os.Getenv("CAPCALL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("CAPCALL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		PostgresDSN:   os.Getenv("CAPCALL_POSTGRES_DSN"),
		RedisURL:      os.Getenv("CAPCALL_REDIS_URL"),
		JWTSigningKey: jwtSigningKey,
	}
}
