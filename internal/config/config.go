package config

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerAddr = "localhost:8000"
	DefaultDSN        = "host=localhost user=postgres password=postgres dbname=brandchat sslmode=disable"
	// development only; override in any shared environment
	DefaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

	envPrefix = "BRANDCHAT_"
)

type Config struct {
	ServerAddr     string   `yaml:"server_addr"`
	DatabaseDSN    string   `yaml:"database_dsn"`
	SigningSecret  string   `yaml:"signing_key"`
	SigningKey     []byte   `yaml:"-"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RedisURL       string   `yaml:"redis_url"`

	// TrustIdentityHeaders accepts x-user-id as the caller's identity
	// without a session. Only for local development behind a trusted proxy.
	TrustIdentityHeaders bool `yaml:"trust_identity_headers"`
	RequireParticipant   bool `yaml:"require_participant"`

	DefaultPageSize int           `yaml:"default_page_size"`
	MaxPageSize     int           `yaml:"max_page_size"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Migrate bool `yaml:"migrate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		ServerAddr:         DefaultServerAddr,
		DatabaseDSN:        DefaultDSN,
		SigningSecret:      DefaultSigningKey,
		RequireParticipant: true,
		DefaultPageSize:    50,
		MaxPageSize:        100,
		SessionTTL:         24 * time.Hour,
		ShutdownTimeout:    10 * time.Second,
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	cfg := Default()
	cfg.ServerAddr = serverAddr
	cfg.DatabaseDSN = databaseDSN
	cfg.SigningSecret = base64Secret
	cfg.AllowedOrigins = allowedOrigins

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and decodes the signing secret.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	if c.MaxPageSize <= 0 {
		return fmt.Errorf("max page size must be positive")
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("default page size must be between 1 and %d", c.MaxPageSize)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	return nil
}

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, splitList(value)...)
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Load builds the configuration from defaults, an optional YAML file, the
// environment (including .env.local and .env) and finally command-line
// flags, each layer overriding the previous one.
func Load(name string, args []string) (*Config, error) {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	var (
		configPath     = fset.String("config", "", "path to a YAML config file")
		addr           = fset.String("addr", "", "server address")
		dsn            = fset.String("dsn", "", "database connection string")
		signingKey     = fset.String("signing-key", "", "base64 encoded signing key")
		redisURL       = fset.String("redis-url", "", "redis URL for session revocation")
		migrate        = fset.Bool("migrate", false, "apply database migrations on startup")
		allowedOrigins stringSliceFlag
	)
	fset.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(".env.local", ".env"); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ServerAddr = *addr
		case "dsn":
			cfg.DatabaseDSN = *dsn
		case "signing-key":
			cfg.SigningSecret = *signingKey
		case "redis-url":
			cfg.RedisURL = *redisURL
		case "migrate":
			cfg.Migrate = *migrate
		case "allowed-origins":
			cfg.AllowedOrigins = allowedOrigins
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadDotEnv loads the given files if they exist. Variables already set in
// the environment win.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		return v, ok && v != ""
	}

	if v, ok := get("ADDR"); ok {
		c.ServerAddr = v
	}
	if v, ok := get("DATABASE_DSN"); ok {
		c.DatabaseDSN = v
	} else if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.DatabaseDSN = v
	}
	if v, ok := get("SIGNING_KEY"); ok {
		c.SigningSecret = v
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := get("REDIS_URL"); ok {
		c.RedisURL = v
	}

	for key, dst := range map[string]*bool{
		"TRUST_IDENTITY_HEADERS": &c.TrustIdentityHeaders,
		"REQUIRE_PARTICIPANT":    &c.RequireParticipant,
		"MIGRATE":                &c.Migrate,
	} {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = b
		}
	}

	for key, dst := range map[string]*int{
		"DEFAULT_PAGE_SIZE": &c.DefaultPageSize,
		"MAX_PAGE_SIZE":     &c.MaxPageSize,
	} {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	for key, dst := range map[string]*time.Duration{
		"SESSION_TTL":      &c.SessionTTL,
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
	} {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}

	return nil
}
