package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Storage driver names accepted by core.OpenPersistentStore.
const (
	DriverREST     = "rest"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Blob driver names accepted by blob.Open.
const (
	BlobFS     = "fs"
	BlobMemory = "memory"
	BlobS3     = "s3"
)

// DefaultChatbotURL is the hosted chatbot webhook.
const DefaultChatbotURL = "https://zjf123.app.n8n.cloud/webhook/chatbot"

const (
	defaultConfigPath     = "~/.config/poemhub/config.toml"
	defaultSQLitePath     = "~/.local/share/poemhub/poemhub.db"
	defaultBlobDir        = "~/.local/share/poemhub/blobs"
	defaultHTTPAddr       = "127.0.0.1:8080"
	defaultChatbotTimeout = 30 * time.Second
)

// Config is the resolved process configuration.
type Config struct {
	Storage Storage
	Chatbot Chatbot
	HTTP    HTTP
	Log     Log
	Blob    Blob
}

// Storage selects and locates the persistence backend.
type Storage struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	// SupabaseURL and SupabaseKey address the hosted data service. Either may
	// be empty; the rest backend then fails every call instead of startup.
	SupabaseURL string
	SupabaseKey string
}

// Chatbot locates the webhook.
type Chatbot struct {
	URL     string
	Timeout time.Duration
}

// HTTP configures the web server.
type HTTP struct {
	Addr string
}

// Log configures the zap logger.
type Log struct {
	Level  string
	Format string
}

// Blob configures where exports are written.
type Blob struct {
	Driver      string
	Dir         string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	// Static credentials, mostly for MinIO. Empty means the AWS default chain.
	S3AccessKeyID     string
	S3SecretAccessKey string
}

type fileConfig struct {
	Storage struct {
		Driver          string `toml:"driver"`
		SQLitePath      string `toml:"sqlite_path"`
		PostgresDSN     string `toml:"postgres_dsn"`
		SupabaseURL     string `toml:"supabase_url"`
		SupabaseAnonKey string `toml:"supabase_anon_key"`
	} `toml:"storage"`
	Chatbot struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
	} `toml:"chatbot"`
	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Blob struct {
		Driver      string `toml:"driver"`
		Dir         string `toml:"dir"`
		S3Bucket    string `toml:"s3_bucket"`
		S3Region    string `toml:"s3_region"`
		S3Endpoint  string `toml:"s3_endpoint"`
		S3PathStyle *bool  `toml:"s3_path_style"`

		S3AccessKeyID     string `toml:"s3_access_key_id"`
		S3SecretAccessKey string `toml:"s3_secret_access_key"`
	} `toml:"blob"`
}

// Default returns the configuration used when no file or environment is present.
func Default() Config {
	return Config{
		Storage: Storage{Driver: DriverREST, SQLitePath: mustExpand(defaultSQLitePath)},
		Chatbot: Chatbot{URL: DefaultChatbotURL, Timeout: defaultChatbotTimeout},
		HTTP:    HTTP{Addr: defaultHTTPAddr},
		Log:     Log{Level: "info", Format: "json"},
		Blob:    Blob{Driver: BlobFS, Dir: mustExpand(defaultBlobDir)},
	}
}

// Load resolves defaults, then the TOML file at path (the default location when
// empty; a missing file is not an error), then environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := applyFile(&cfg, resolved); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&cfg.Storage.Driver, raw.Storage.Driver)
	setPath(&cfg.Storage.SQLitePath, raw.Storage.SQLitePath)
	setString(&cfg.Storage.PostgresDSN, raw.Storage.PostgresDSN)
	setString(&cfg.Storage.SupabaseURL, raw.Storage.SupabaseURL)
	setString(&cfg.Storage.SupabaseKey, raw.Storage.SupabaseAnonKey)
	setString(&cfg.Chatbot.URL, raw.Chatbot.URL)
	if err := setDuration(&cfg.Chatbot.Timeout, raw.Chatbot.Timeout); err != nil {
		return fmt.Errorf("chatbot.timeout: %w", err)
	}
	setString(&cfg.HTTP.Addr, raw.HTTP.Addr)
	setString(&cfg.Log.Level, raw.Log.Level)
	setString(&cfg.Log.Format, raw.Log.Format)
	setString(&cfg.Blob.Driver, raw.Blob.Driver)
	setPath(&cfg.Blob.Dir, raw.Blob.Dir)
	setString(&cfg.Blob.S3Bucket, raw.Blob.S3Bucket)
	setString(&cfg.Blob.S3Region, raw.Blob.S3Region)
	setString(&cfg.Blob.S3Endpoint, raw.Blob.S3Endpoint)
	setString(&cfg.Blob.S3AccessKeyID, raw.Blob.S3AccessKeyID)
	setString(&cfg.Blob.S3SecretAccessKey, raw.Blob.S3SecretAccessKey)
	if raw.Blob.S3PathStyle != nil {
		cfg.Blob.S3PathStyle = *raw.Blob.S3PathStyle
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Storage.Driver, os.Getenv("POEMHUB_STORAGE_DRIVER"))
	setPath(&cfg.Storage.SQLitePath, os.Getenv("POEMHUB_SQLITE_PATH"))
	setString(&cfg.Storage.PostgresDSN, os.Getenv("POEMHUB_POSTGRES_DSN"))
	setString(&cfg.Storage.SupabaseURL, os.Getenv("SUPABASE_URL"))
	setString(&cfg.Storage.SupabaseKey, os.Getenv("SUPABASE_ANON_KEY"))
	setString(&cfg.Chatbot.URL, os.Getenv("POEMHUB_CHATBOT_URL"))
	if err := setDuration(&cfg.Chatbot.Timeout, os.Getenv("POEMHUB_CHATBOT_TIMEOUT")); err != nil {
		return fmt.Errorf("POEMHUB_CHATBOT_TIMEOUT: %w", err)
	}
	setString(&cfg.HTTP.Addr, os.Getenv("POEMHUB_HTTP_ADDR"))
	setString(&cfg.Log.Level, os.Getenv("POEMHUB_LOG_LEVEL"))
	setString(&cfg.Log.Format, os.Getenv("POEMHUB_LOG_FORMAT"))
	setString(&cfg.Blob.Driver, os.Getenv("POEMHUB_BLOB_DRIVER"))
	setPath(&cfg.Blob.Dir, os.Getenv("POEMHUB_BLOB_DIR"))
	setString(&cfg.Blob.S3Bucket, os.Getenv("POEMHUB_BLOB_S3_BUCKET"))
	setString(&cfg.Blob.S3Region, os.Getenv("POEMHUB_BLOB_S3_REGION"))
	setString(&cfg.Blob.S3Endpoint, os.Getenv("POEMHUB_BLOB_S3_ENDPOINT"))
	setString(&cfg.Blob.S3AccessKeyID, os.Getenv("POEMHUB_BLOB_S3_ACCESS_KEY_ID"))
	setString(&cfg.Blob.S3SecretAccessKey, os.Getenv("POEMHUB_BLOB_S3_SECRET_ACCESS_KEY"))
	if raw := strings.TrimSpace(os.Getenv("POEMHUB_BLOB_S3_PATH_STYLE")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("POEMHUB_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.Blob.S3PathStyle = v
	}
	return nil
}

// Validate rejects unknown drivers and non-positive timeouts.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverREST, DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case BlobFS, BlobMemory:
	case BlobS3:
		if c.Blob.S3Bucket == "" {
			return errors.New("blob driver s3 requires a bucket")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Chatbot.Timeout <= 0 {
		return fmt.Errorf("chatbot timeout must be positive, got %s", c.Chatbot.Timeout)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setPath(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = mustExpand(v)
	}
}

func setDuration(dst *time.Duration, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
