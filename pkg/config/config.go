// Package config provides configuration management for attendface.
// It loads configuration from YAML files with sensible defaults and lets
// the environment (and an optional .env file) override deployment secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all attendface configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	RequestTimeout int      `yaml:"request_timeout"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RecognitionConfig holds face recognition settings.
type RecognitionConfig struct {
	Tolerance         float64 `yaml:"tolerance"`
	ModelPath         string  `yaml:"model_path"`
	Backend           string  `yaml:"backend"`
	DuplicateCheck    bool    `yaml:"duplicate_check"`
	DetectTimeout     int     `yaml:"detect_timeout"`
	MaxImageDimension int     `yaml:"max_image_dimension"`
	MaxImagePixels    int     `yaml:"max_image_pixels"`
	CropPadding       int     `yaml:"crop_padding"`
}

// StorageConfig holds embedding store settings.
type StorageConfig struct {
	Backend           string `yaml:"backend"`
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
	SaveCrops         bool   `yaml:"save_crops"`
}

// DatabaseConfig holds the MySQL connection settings.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// AttendanceConfig holds attendance policy settings.
type AttendanceConfig struct {
	LateAfter          string `yaml:"late_after"`
	AbsentSweepEnabled bool   `yaml:"absent_sweep_enabled"`
	AbsentSweepCron    string `yaml:"absent_sweep_cron"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 30,
			MaxUploadBytes: 10 << 20,
			AllowedOrigins: []string{"*"},
		},
		Recognition: RecognitionConfig{
			Tolerance:         0.6,
			ModelPath:         filepath.Join(homeDir, ".local/share/attendface/models"),
			Backend:           "auto",
			DuplicateCheck:    true,
			DetectTimeout:     10,
			MaxImageDimension: 1600,
			MaxImagePixels:    40_000_000,
			CropPadding:       20,
		},
		Storage: StorageConfig{
			Backend:           "mysql",
			DataDir:           filepath.Join(homeDir, ".local/share/attendface"),
			EncryptionEnabled: true,
			SaveCrops:         true,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: 60,
		},
		Attendance: AttendanceConfig{
			LateAfter:          "09:00",
			AbsentSweepEnabled: true,
			AbsentSweepCron:    "55 23 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file and applies
// environment overrides on top of it.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	config.ApplyEnv()
	return config, nil
}

// LoadDefault tries to load configuration from default locations.
func LoadDefault() (*Config, error) {
	// Try system config first
	if _, err := os.Stat("/etc/attendface/attendface.yaml"); err == nil {
		return Load("/etc/attendface/attendface.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		userConfig := filepath.Join(homeDir, ".config/attendface/attendface.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return Load(userConfig)
		}
	}

	config := DefaultConfig()
	config.ApplyEnv()
	return config, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_KEY"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Recognition.ModelPath = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FACE_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Recognition.Tolerance = f
		}
	}
	c.Server.Port = envInt("PORT", c.Server.Port)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %d", c.Server.RequestTimeout)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}

	if c.Recognition.Tolerance <= 0 || c.Recognition.Tolerance > 2 {
		return fmt.Errorf("tolerance must be in (0, 2], got %f", c.Recognition.Tolerance)
	}
	validBackends := map[string]bool{"auto": true, "hog": true, "cnn": true}
	if !validBackends[c.Recognition.Backend] {
		return fmt.Errorf("invalid detector backend: %s (must be auto, hog, or cnn)", c.Recognition.Backend)
	}
	if c.Recognition.DetectTimeout <= 0 {
		return fmt.Errorf("detect_timeout must be positive, got %d", c.Recognition.DetectTimeout)
	}
	if c.Recognition.MaxImageDimension < 0 {
		return fmt.Errorf("max_image_dimension must not be negative, got %d", c.Recognition.MaxImageDimension)
	}
	if c.Recognition.MaxImagePixels < 0 {
		return fmt.Errorf("max_image_pixels must not be negative, got %d", c.Recognition.MaxImagePixels)
	}
	if c.Recognition.CropPadding < 0 {
		return fmt.Errorf("crop_padding must not be negative, got %d", c.Recognition.CropPadding)
	}

	switch c.Storage.Backend {
	case "file", "memory":
	case "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for the mysql storage backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be mysql, file, or memory)", c.Storage.Backend)
	}

	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token_ttl_minutes must be positive, got %d", c.Auth.TokenTTLMinutes)
	}

	if !clockPattern.MatchString(c.Attendance.LateAfter) {
		return fmt.Errorf("late_after must be HH:MM, got %q", c.Attendance.LateAfter)
	}
	if c.Attendance.AbsentSweepEnabled && c.Attendance.AbsentSweepCron == "" {
		return fmt.Errorf("absent_sweep_cron is required when the absent sweep is enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the data, face, crop and model directories.
func (c *Config) EnsureDirectories() error {
	dirs := []struct {
		path string
		perm os.FileMode
		name string
	}{
		{c.Storage.DataDir, 0700, "storage"},
		{c.FacesDir(), 0700, "faces"},
		{c.CropsDir(), 0700, "crops"},
		{c.Recognition.ModelPath, 0755, "models"},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.perm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", d.name, err)
		}
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// FacesDir returns the directory used by the file embedding store.
func (c *Config) FacesDir() string {
	return filepath.Join(c.Storage.DataDir, "faces")
}

// CropsDir returns the directory that receives enrollment audit crops.
func (c *Config) CropsDir() string {
	return filepath.Join(c.Storage.DataDir, "crops")
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
