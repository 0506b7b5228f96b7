// Package config loads settings from defaults, an optional TOML file and
// the environment, in that order.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"trendmaker/internal/pkg/env"
	"trendmaker/internal/pkg/errors"
)

// PathEnv names the config file when no -config flag is given.
const PathEnv = "TRENDMAKER_CONFIG"

// DefaultBaseURL is the production render service.
const DefaultBaseURL = "https://bigtrendmaker-production.up.railway.app"

type Config struct {
	API     APIConfig     `toml:"api"`
	Server  ServerConfig  `toml:"server"`
	Journal JournalConfig `toml:"journal"`
	Archive ArchiveConfig `toml:"archive"`
	Log     LogConfig     `toml:"log"`
}

type APIConfig struct {
	BaseURL string `toml:"base_url"`
	// RequestTimeout bounds each render/status call; zero means none.
	RequestTimeout time.Duration `toml:"request_timeout"`
	PollInterval   time.Duration `toml:"poll_interval"`
	MaxPolls       int           `toml:"max_polls"`
}

type ServerConfig struct {
	Addr           string        `toml:"addr"`
	AllowedOrigins []string      `toml:"allowed_origins"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout"`
	// AuthSecret turns on bearer-token auth for the companion API.
	AuthSecret string `toml:"auth_secret"`
}

type JournalConfig struct {
	// Driver is one of none, sqlite, postgres, redis.
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	// Key is the redis list (and pub/sub channel prefix) holding entries.
	Key    string `toml:"key"`
	Buffer int    `toml:"buffer"`
	Keep   int    `toml:"keep"`
}

type ArchiveConfig struct {
	// Provider is empty (archiving off), localfs, gdrive, minio or s3.
	Provider  string        `toml:"provider"`
	Prefix    string        `toml:"prefix"`
	Timeout   time.Duration `toml:"timeout"`
	LocalRoot string        `toml:"local_root"`
	GDrive    GDriveConfig  `toml:"gdrive"`
	S3        S3Config      `toml:"s3"`
}

type GDriveConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	FolderID     string `toml:"folder_id"`
}

type S3Config struct {
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	Bucket       string `toml:"bucket"`
	UseSSL       bool   `toml:"use_ssl"`
	UsePathStyle bool   `toml:"use_path_style"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	AddSource bool   `toml:"add_source"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:      DefaultBaseURL,
			PollInterval: 2 * time.Second,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8787",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Journal: JournalConfig{
			Driver: "none",
			Key:    "trendmaker:journal",
			Buffer: 64,
			Keep:   500,
		},
		Archive: ArchiveConfig{
			Prefix:  "renders",
			Timeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (or $TRENDMAKER_CONFIG when path is empty) over the
// defaults, then applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = env.String(PathEnv, "")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			msg := "invalid config file " + path
			if os.IsNotExist(err) {
				msg = "config file not found: " + path
			}
			return Config{}, errors.WrapWithCode(err, errors.CodeValidation, "config.Load", msg)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses TOML text over the defaults. Environment is not consulted.
func Decode(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, errors.WrapWithCode(err, errors.CodeValidation, "config.Decode", "invalid config")
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.API.BaseURL = env.String("TRENDMAKER_API_BASE_URL", c.API.BaseURL)
	c.API.RequestTimeout = env.Duration("TRENDMAKER_REQUEST_TIMEOUT", c.API.RequestTimeout)
	c.API.PollInterval = env.Duration("TRENDMAKER_POLL_INTERVAL", c.API.PollInterval)
	c.API.MaxPolls = env.Int("TRENDMAKER_MAX_POLLS", c.API.MaxPolls)

	c.Server.Addr = env.String("TRENDMAKER_ADDR", c.Server.Addr)
	c.Server.AllowedOrigins = env.CSV("TRENDMAKER_CORS_ORIGINS", c.Server.AllowedOrigins)
	c.Server.AuthSecret = env.String("TRENDMAKER_AUTH_SECRET", c.Server.AuthSecret)

	c.Journal.Driver = env.String("TRENDMAKER_JOURNAL_DRIVER", c.Journal.Driver)
	c.Journal.DSN = env.String("TRENDMAKER_JOURNAL_DSN", c.Journal.DSN)
	c.Journal.Key = env.String("TRENDMAKER_JOURNAL_KEY", c.Journal.Key)

	c.Archive.Provider = env.String("STORAGE_PROVIDER", c.Archive.Provider)
	c.Archive.Prefix = env.String("TRENDMAKER_ARCHIVE_PREFIX", c.Archive.Prefix)
	c.Archive.LocalRoot = env.String("STORAGE_LOCAL_ROOT", c.Archive.LocalRoot)
	c.Archive.GDrive.ClientID = env.String("GDRIVE_CLIENT_ID", c.Archive.GDrive.ClientID)
	c.Archive.GDrive.ClientSecret = env.String("GDRIVE_CLIENT_SECRET", c.Archive.GDrive.ClientSecret)
	c.Archive.GDrive.RefreshToken = env.String("GDRIVE_REFRESH_TOKEN", c.Archive.GDrive.RefreshToken)
	c.Archive.GDrive.FolderID = env.String("GDRIVE_FOLDER_ID", c.Archive.GDrive.FolderID)
	c.Archive.S3.Endpoint = env.String("S3_ENDPOINT", c.Archive.S3.Endpoint)
	c.Archive.S3.Region = env.String("S3_REGION", c.Archive.S3.Region)
	c.Archive.S3.AccessKey = env.String("S3_ACCESS_KEY", c.Archive.S3.AccessKey)
	c.Archive.S3.SecretKey = env.String("S3_SECRET_KEY", c.Archive.S3.SecretKey)
	c.Archive.S3.Bucket = env.String("S3_BUCKET", c.Archive.S3.Bucket)
	c.Archive.S3.UseSSL = env.Bool("S3_USE_SSL", c.Archive.S3.UseSSL)
	c.Archive.S3.UsePathStyle = env.Bool("S3_USE_PATH_STYLE", c.Archive.S3.UsePathStyle)

	c.Log.Level = env.String("LOG_LEVEL", c.Log.Level)
	c.Log.Format = env.String("LOG_FORMAT", c.Log.Format)
	c.Log.AddSource = env.Bool("LOG_SOURCE", c.Log.AddSource)
}

// Validate rejects settings the binaries cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.Validation("api.base_url is required")
	}
	if c.API.PollInterval <= 0 {
		return errors.Validation("api.poll_interval must be positive")
	}
	if c.API.RequestTimeout < 0 {
		return errors.Validation("api.request_timeout must not be negative")
	}
	if c.API.MaxPolls < 0 {
		return errors.Validation("api.max_polls must not be negative")
	}

	switch c.Journal.Driver {
	case "", "none":
	case "sqlite", "postgres", "redis":
		if c.Journal.DSN == "" {
			return errors.Validation("journal.dsn is required for driver " + c.Journal.Driver)
		}
	default:
		return errors.Validation("unknown journal driver: " + c.Journal.Driver)
	}

	switch c.Archive.Provider {
	case "":
	case "localfs":
		if c.Archive.LocalRoot == "" {
			return errors.Validation("archive.local_root is required for localfs")
		}
	case "gdrive":
		g := c.Archive.GDrive
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			return errors.Validation("archive.gdrive needs client_id, client_secret and refresh_token")
		}
	case "minio", "s3":
		if c.Archive.S3.Bucket == "" {
			return errors.Validation("archive.s3.bucket is required for " + c.Archive.Provider)
		}
		if c.Archive.Provider == "minio" && c.Archive.S3.Endpoint == "" {
			return errors.Validation("archive.s3.endpoint is required for minio")
		}
	default:
		return errors.Validation("unknown archive provider: " + c.Archive.Provider)
	}
	return nil
}
