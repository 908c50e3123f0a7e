package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultModelName              = "roberta-base-openai-detector"
	DefaultMaxTokens              = 512
	DefaultTimeoutSeconds         = 30
	DefaultIdentityTimeoutSeconds = 10
	DefaultUploadBytes            = 10 << 20
	DefaultFrontendURL            = "http://localhost:5173"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Identity    IdentityConfig            `json:"identity"`
	Inference   InferenceConfig           `json:"inference"`
	Documents   DocumentsConfig           `json:"documents"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address"`
	Database       string   `json:"database"`
	AllowedOrigins []string `json:"allowed_origins"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
	LogLevel       string   `json:"log_level"`
	PrettyLogs     bool     `json:"pretty_logs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// IdentityConfig selects the auth provider. "local" keeps identities in the
// application database, "gotrue" delegates to a Supabase compatible server.
type IdentityConfig struct {
	Provider               string `json:"provider"`
	URL                    string `json:"url"`
	APIKey                 string `json:"api_key"`
	JWTSecret              string `json:"jwt_secret"`
	TokenTTLMinutes        int    `json:"token_ttl_minutes"`
	CleanupIntervalMinutes int    `json:"cleanup_interval_minutes"`
	TimeoutSeconds         int    `json:"timeout_seconds"`
}

type InferenceConfig struct {
	Backend        string `json:"backend"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// DocumentsConfig points at an optional MinIO bucket for uploaded PDFs.
type DocumentsConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// Enabled reports whether an archive bucket is configured.
func (d DocumentsConfig) Enabled() bool {
	return d.Endpoint != "" && d.Bucket != ""
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is tolerated; values then come from defaults and the
// environment, including a .env file in the working directory.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads the configuration like Load but only requires the
// selected database to be configured. Offline tooling that never
// authenticates or classifies uses it.
func LoadDatabase(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && !isMemoryDSN(dbCfg.DSN) && !filepath.IsAbs(dbCfg.DSN) {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.BasicConfig.ServerAddress, "SERVER_ADDRESS")
	setString(&c.BasicConfig.Database, "DETECTOR_DB")
	setString(&c.BasicConfig.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		c.BasicConfig.AllowedOrigins = append(c.BasicConfig.AllowedOrigins, v)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		if c.Databases == nil {
			c.Databases = map[string]DatabaseConfig{}
		}
		name := c.BasicConfig.Database
		if name == "" {
			name = "sqlite3"
		}
		dbCfg := c.Databases[name]
		dbCfg.DSN = dsn
		c.Databases[name] = dbCfg
	}

	setString(&c.Redis.Host, "REDIS_HOST")
	setInt(&c.Redis.Port, "REDIS_PORT")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Identity.Provider = "gotrue"
		c.Identity.URL = v
	}
	setString(&c.Identity.Provider, "IDENTITY_PROVIDER")
	setString(&c.Identity.APIKey, "SUPABASE_KEY")
	setString(&c.Identity.JWTSecret, "SUPABASE_JWT")
	setString(&c.Identity.JWTSecret, "JWT_SECRET")

	setString(&c.Inference.Backend, "INFERENCE_BACKEND")
	setString(&c.Inference.BaseURL, "INFERENCE_URL")
	setString(&c.Inference.Model, "INFERENCE_MODEL")
	setString(&c.Inference.APIKey, "INFERENCE_API_KEY")

	setString(&c.Documents.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Documents.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Documents.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Documents.Bucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		c.Documents.UseSSL = v == "true"
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8000"
	}
	if c.BasicConfig.Database == "" {
		c.BasicConfig.Database = "sqlite3"
	}
	if c.BasicConfig.MaxUploadBytes <= 0 {
		c.BasicConfig.MaxUploadBytes = DefaultUploadBytes
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	c.BasicConfig.AllowedOrigins = mergeOrigins(c.BasicConfig.AllowedOrigins,
		DefaultFrontendURL, "http://localhost:3000")

	if c.Databases == nil {
		c.Databases = map[string]DatabaseConfig{}
	}
	if _, ok := c.Databases["sqlite3"]; !ok && c.BasicConfig.Database == "sqlite3" {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "detector.db"}
	}
	if mysqlCfg, ok := c.Databases["mysql"]; ok && mysqlCfg.Params == "" {
		mysqlCfg.Params = "parseTime=true&charset=utf8mb4"
		c.Databases["mysql"] = mysqlCfg
	}

	if c.Identity.Provider == "" {
		c.Identity.Provider = "local"
	}
	if c.Identity.TokenTTLMinutes <= 0 {
		c.Identity.TokenTTLMinutes = 24 * 60
	}
	if c.Identity.CleanupIntervalMinutes <= 0 {
		c.Identity.CleanupIntervalMinutes = 60
	}
	if c.Identity.TimeoutSeconds <= 0 {
		c.Identity.TimeoutSeconds = DefaultIdentityTimeoutSeconds
	}

	if c.Inference.Backend == "" {
		c.Inference.Backend = "http"
	}
	if c.Inference.Model == "" && c.Inference.Backend == "http" {
		c.Inference.Model = DefaultModelName
	}
	if c.Inference.MaxTokens <= 0 {
		c.Inference.MaxTokens = DefaultMaxTokens
	}
	if c.Inference.TimeoutSeconds <= 0 {
		c.Inference.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

// Validate reports the first missing setting the selected providers need.
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	switch c.Identity.Provider {
	case "local":
		if c.Identity.JWTSecret == "" {
			return errors.New("identity.jwt_secret must be configured for the local provider")
		}
	case "gotrue":
		if c.Identity.URL == "" || c.Identity.APIKey == "" {
			return errors.New("identity.url and identity.api_key must be configured for gotrue")
		}
	default:
		return fmt.Errorf("unsupported identity provider: %s", c.Identity.Provider)
	}
	switch c.Inference.Backend {
	case "http":
		if c.Inference.BaseURL == "" {
			return errors.New("inference.base_url must be configured")
		}
	case "openai", "claude", "gemini":
		if c.Inference.APIKey == "" || c.Inference.Model == "" {
			return fmt.Errorf("inference.api_key and inference.model must be configured for %s", c.Inference.Backend)
		}
	default:
		return fmt.Errorf("unsupported inference backend: %s", c.Inference.Backend)
	}
	return nil
}

// ValidateDatabase checks only the selected database entry.
func (c *Config) ValidateDatabase() error {
	if _, ok := c.Databases[c.BasicConfig.Database]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.Database)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func mergeOrigins(origins []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(origins)+len(extra))
	out := make([]string, 0, len(origins)+len(extra))
	for _, o := range append(origins, extra...) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:")
}
