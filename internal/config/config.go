package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	QuarantineRoot      string
	RootMode            fs.FileMode
	RestoreDirMode      fs.FileMode
	QuarantinedFileMode fs.FileMode
	DatabaseDriver      string
	DatabasePath        string
	DatabaseURL         string
	DBMaxConns          int32
	DBMinConns          int32
	RetentionPeriod     time.Duration
	LogLevel            string
	LogFormat           string
}

// fileConfig is the layout of the optional YAML file named by
// QUARANTINE_CONFIG_FILE. Modes are octal strings such as "0700".
type fileConfig struct {
	QuarantineRoot      string `yaml:"quarantine_root"`
	RootMode            string `yaml:"root_mode"`
	RestoreDirMode      string `yaml:"restore_dir_mode"`
	QuarantinedFileMode string `yaml:"quarantined_file_mode"`
	RetentionPeriod     string `yaml:"retention_period"`
	Database            struct {
		Driver   string `yaml:"driver"`
		Path     string `yaml:"path"`
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Default() *Config {
	return &Config{
		QuarantineRoot:      "./state/quarantine",
		RootMode:            0o700,
		RestoreDirMode:      0o755,
		QuarantinedFileMode: 0o400,
		DatabaseDriver:      DriverSQLite,
		DatabasePath:        "./state/quarantine.db",
		DBMaxConns:          4,
		DBMinConns:          0,
		RetentionPeriod:     30 * 24 * time.Hour,
		LogLevel:            "info",
		LogFormat:           "auto",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// QUARANTINE_CONFIG_FILE, then environment variables (including .env).
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(getEnv("QUARANTINE_CONFIG_FILE", ""))
}

// LoadFrom is Load with an explicit YAML file; an empty path skips the file.
// Environment variables still override it.
func LoadFrom(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.QuarantineRoot, fc.QuarantineRoot)
	setString(&c.DatabaseDriver, fc.Database.Driver)
	setString(&c.DatabasePath, fc.Database.Path)
	setString(&c.DatabaseURL, fc.Database.URL)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)
	if fc.Database.MaxConns != 0 {
		c.DBMaxConns = fc.Database.MaxConns
	}
	if fc.Database.MinConns != 0 {
		c.DBMinConns = fc.Database.MinConns
	}

	var errs []error
	errs = append(errs,
		setMode(&c.RootMode, "root_mode", fc.RootMode),
		setMode(&c.RestoreDirMode, "restore_dir_mode", fc.RestoreDirMode),
		setMode(&c.QuarantinedFileMode, "quarantined_file_mode", fc.QuarantinedFileMode),
		setDuration(&c.RetentionPeriod, "retention_period", fc.RetentionPeriod),
	)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.QuarantineRoot = getEnv("QUARANTINE_ROOT", c.QuarantineRoot)
	c.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", c.DatabaseDriver))
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DBMaxConns = getInt32("DB_MAX_CONNS", c.DBMaxConns)
	c.DBMinConns = getInt32("DB_MIN_CONNS", c.DBMinConns)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))

	return errors.Join(
		setMode(&c.RootMode, "QUARANTINE_ROOT_MODE", getEnv("QUARANTINE_ROOT_MODE", "")),
		setMode(&c.RestoreDirMode, "RESTORE_DIR_MODE", getEnv("RESTORE_DIR_MODE", "")),
		setMode(&c.QuarantinedFileMode, "QUARANTINED_FILE_MODE", getEnv("QUARANTINED_FILE_MODE", "")),
		setDuration(&c.RetentionPeriod, "RETENTION_PERIOD", getEnv("RETENTION_PERIOD", "")),
	)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.QuarantineRoot) == "" {
		return fmt.Errorf("QUARANTINE_ROOT cannot be empty")
	}

	if c.RootMode&0o700 != 0o700 {
		return fmt.Errorf("QUARANTINE_ROOT_MODE must grant the owner rwx, got %#o", c.RootMode)
	}

	if c.RestoreDirMode&0o700 != 0o700 {
		return fmt.Errorf("RESTORE_DIR_MODE must grant the owner rwx, got %#o", c.RestoreDirMode)
	}

	if c.QuarantinedFileMode&0o400 == 0 {
		return fmt.Errorf("QUARANTINED_FILE_MODE must keep the file readable by its owner, got %#o", c.QuarantinedFileMode)
	}

	if c.QuarantinedFileMode&0o133 != 0 {
		return fmt.Errorf("QUARANTINED_FILE_MODE must not grant execute or group/other write, got %#o", c.QuarantinedFileMode)
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("DATABASE_PATH cannot be empty for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		if c.DBMaxConns <= 0 {
			return fmt.Errorf("DB_MAX_CONNS must be positive")
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}

	if c.RetentionPeriod <= 0 {
		return fmt.Errorf("RETENTION_PERIOD must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	switch c.LogFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be auto, text or json")
	}

	return nil
}

// ParseMode parses an octal permission string such as "0755" or "0o755".
func ParseMode(raw string) (fs.FileMode, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "0o")
	v, err := strconv.ParseUint(trimmed, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", raw)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("mode %q has bits outside 0777", raw)
	}
	return fs.FileMode(v), nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setMode(dst *fs.FileMode, key string, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	mode, err := ParseMode(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = mode
	return nil
}

func setDuration(dst *time.Duration, key string, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt32(key string, fallback int32) int32 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}

	return int32(v)
}
