package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	libconfig "glucoseapi/backend/libs/config"
)

const (
	defaultHTTPPort       = "8000"
	defaultSSLMode        = "disable"
	defaultMaxOpenConns   = 25
	defaultLogLevel       = "info"
	defaultCacheTTL       = 3600
	defaultUploadMaxBytes = 32 << 20
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port           string `yaml:"port" env:"GLUCOSE_HTTP_PORT"`
	UploadMaxBytes int64  `yaml:"uploadMaxBytes" env:"GLUCOSE_UPLOAD_MAX_BYTES"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host         string `yaml:"host" env:"DATABASE_HOST" required:"true"`
	Port         int    `yaml:"port" env:"DATABASE_PORT" required:"true"`
	Name         string `yaml:"name" env:"DATABASE_NAME" required:"true"`
	User         string `yaml:"user" env:"DATABASE_USER" required:"true"`
	Password     string `yaml:"password" env:"DATABASE_PASSWORD" required:"true"`
	SSLMode      string `yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"DATABASE_MAX_OPEN_CONNS"`
}

// RedisConfig enables the record cache when Addr is set.
type RedisConfig struct {
	Addr       string `yaml:"addr" env:"REDIS_ADDR"`
	Password   string `yaml:"password" env:"REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"REDIS_DB"`
	TTLSeconds int    `yaml:"ttlSeconds" env:"CACHE_TTL_SECONDS"`
}

// AuthConfig enables bearer token checks when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"GLUCOSE_JWT_SECRET"`
}

// Config defines glucose service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	LogLevel string         `yaml:"logLevel" env:"LOG_LEVEL"`
}

// Default returns configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           defaultHTTPPort,
			UploadMaxBytes: defaultUploadMaxBytes,
		},
		Database: DatabaseConfig{
			SSLMode:      defaultSSLMode,
			MaxOpenConns: defaultMaxOpenConns,
		},
		Redis: RedisConfig{
			TTLSeconds: defaultCacheTTL,
		},
		LogLevel: defaultLogLevel,
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultHTTPPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// DSN builds a postgres:// URL with escaped credentials.
func (c *Config) DSN() string {
	sslMode := strings.TrimSpace(c.Database.SSLMode)
	if sslMode == "" {
		sslMode = defaultSSLMode
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// CacheEnabled reports whether a redis address was configured.
func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// CacheTTL returns ttl as duration.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return defaultCacheTTL * time.Second
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// UploadMaxBytes caps the multipart request body.
func (c *Config) UploadMaxBytes() int64 {
	if c.HTTP.UploadMaxBytes <= 0 {
		return defaultUploadMaxBytes
	}
	return c.HTTP.UploadMaxBytes
}
