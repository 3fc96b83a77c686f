package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig
	appErr    error
)

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	AutoMigrate     bool          `yaml:"autoMigrate"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Algorithm string `yaml:"algorithm"`
}

type UploadConfig struct {
	MaxFileSizeMB int64  `yaml:"maxFileSizeMB"`
	MaxPageCount  int    `yaml:"maxPageCount"`
	Root          string `yaml:"root"`
}

type StorageConfig struct {
	// Backend is one of local, s3, minio
	Backend   string `yaml:"backend"`
	LocalRoot string `yaml:"localRoot"`
}

type ExtractionConfig struct {
	// TableFinder is one of layout, textract
	TableFinder string `yaml:"tableFinder"`
	MaxWorkers  int    `yaml:"maxWorkers"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
	File     string `yaml:"file"`
}

type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Upload     UploadConfig     `yaml:"upload"`
	Storage    StorageConfig    `yaml:"storage"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Log        LogConfig        `yaml:"log"`
	// AsyncProcessing enables the asynq-backed ?async=true process mode
	AsyncProcessing bool `yaml:"asyncProcessing"`
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Auth: AuthConfig{Algorithm: "HS256"},
		Upload: UploadConfig{
			MaxFileSizeMB: 15,
			MaxPageCount:  1000,
			Root:          "uploads",
		},
		Storage:    StorageConfig{Backend: "local", LocalRoot: "."},
		Extraction: ExtractionConfig{TableFinder: "layout", MaxWorkers: 4},
		Log:        LogConfig{Level: "info", Encoding: "json", File: "logs/app.log"},
	}
}

// GetAppConfig loads the application config once per process.
func GetAppConfig() (*AppConfig, error) {
	appOnce.Do(func() {
		loadEnv()
		appConfig, appErr = LoadAppConfig(os.Getenv("APP_CONFIG_FILE"))
	})
	return appConfig, appErr
}

// LoadAppConfig builds a config from defaults, the optional YAML file at path,
// and the environment, in increasing precedence.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := defaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.Server.Addr = getEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)
	cfg.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", cfg.Database.AutoMigrate)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET_KEY", cfg.Auth.JWTSecret)
	cfg.Auth.Algorithm = getEnv("JWT_ALGORITHM", cfg.Auth.Algorithm)

	cfg.Upload.MaxFileSizeMB = int64(getEnvInt("UPLOAD_MAX_SIZE_MB", int(cfg.Upload.MaxFileSizeMB)))
	cfg.Upload.MaxPageCount = getEnvInt("UPLOAD_MAX_PAGES", cfg.Upload.MaxPageCount)
	cfg.Upload.Root = getEnv("UPLOAD_ROOT", cfg.Upload.Root)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalRoot = getEnv("STORAGE_LOCAL_ROOT", cfg.Storage.LocalRoot)

	cfg.Extraction.TableFinder = getEnv("EXTRACTION_TABLE_FINDER", cfg.Extraction.TableFinder)
	cfg.Extraction.MaxWorkers = getEnvInt("EXTRACTION_MAX_WORKERS", cfg.Extraction.MaxWorkers)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Encoding = getEnv("LOG_ENCODING", cfg.Log.Encoding)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.AsyncProcessing = getEnvBool("ASYNC_PROCESSING_ENABLED", cfg.AsyncProcessing)

	return cfg, nil
}

// MaxFileSize is the upload limit in bytes.
func (c *AppConfig) MaxFileSize() int64 {
	return c.Upload.MaxFileSizeMB * 1024 * 1024
}

// Validate reports every missing or inconsistent setting at once.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	}
	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported JWT algorithm %q", c.Auth.Algorithm))
	}
	if c.Upload.MaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("upload size limit must be positive"))
	}
	switch c.Storage.Backend {
	case "local", "s3", "minio":
	default:
		errs = append(errs, fmt.Errorf("unsupported storage backend %q", c.Storage.Backend))
	}
	switch c.Extraction.TableFinder {
	case "layout", "textract":
	default:
		errs = append(errs, fmt.Errorf("unsupported table finder %q", c.Extraction.TableFinder))
	}
	return errors.Join(errs...)
}
