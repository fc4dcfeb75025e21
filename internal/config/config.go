package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza la configuración cargada del entorno.
type Config struct {
	Env             string
	LogLevel        string
	Port            int
	DBDSN           string
	RedisURL        string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	JWTSecret       string
	AllowOrigins    []string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	Guard           GuardConfig
	SecurityLog     SecurityLogConfig
}

// RateLimitConfig representa límites simples de throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// GuardConfig agrupa destinos de redirección y duración de alertas.
type GuardConfig struct {
	LoginPath        string
	UnauthorizedPath string
	AlertTTL         time.Duration
	SessionLookup    time.Duration
}

// SecurityLogConfig describe el endpoint externo de registro de accesos denegados.
type SecurityLogConfig struct {
	URL               string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Load carga variables de entorno y aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Env = strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", "development")))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválido")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obligatorio")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obligatorio")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET debe tener al menos 32 caracteres")
	}

	if cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JWTRefreshTTL, err = parseDurationEnv("JWT_REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	cfg.AllowOrigins = splitList(getEnv("ALLOW_ORIGINS", ""))

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	cfg.Guard.LoginPath = pathEnv("LOGIN_PATH", "/")
	cfg.Guard.UnauthorizedPath = pathEnv("UNAUTHORIZED_PATH", "/unauthorized")
	if cfg.Guard.AlertTTL, err = parseDurationEnv("ALERT_TTL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Guard.AlertTTL <= 0 {
		return nil, errors.New("ALERT_TTL debe ser positivo")
	}
	if cfg.Guard.SessionLookup, err = parseDurationEnv("SESSION_LOOKUP_TIMEOUT", 500*time.Millisecond); err != nil {
		return nil, err
	}

	cfg.SecurityLog.URL = strings.TrimSpace(getEnv("SECURITY_LOG_URL", ""))
	cfg.SecurityLog.Token = strings.TrimSpace(getEnv("SECURITY_LOG_TOKEN", ""))
	if cfg.SecurityLog.Timeout, err = parseDurationEnv("SECURITY_LOG_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	rps, err := parseFloatEnv("SECURITY_LOG_RPS", 5)
	if err != nil {
		return nil, err
	}
	cfg.SecurityLog.RequestsPerSecond = rps
	cfg.SecurityLog.Burst = 10

	return cfg, nil
}

// Development indica entorno local.
func (c *Config) Development() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func pathEnv(key, def string) string {
	val := strings.TrimSpace(getEnv(key, def))
	if val == "" || !strings.HasPrefix(val, "/") {
		return def
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 0 {
		return 0, errors.New(key + " inválido")
	}
	return f, nil
}
