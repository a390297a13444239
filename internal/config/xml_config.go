// Package config provides XML-based configuration management for the room
// editor server.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultFileName is the config file looked up next to the executable.
const DefaultFileName = "RoomEditor.exe.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"RoomEditor"`

	Server    ServerConfig    `xml:"Server"`
	Storage   StorageConfig   `xml:"Storage"`
	Editor    EditorConfig    `xml:"Editor"`
	ImageEdit ImageEditConfig `xml:"ImageEdit"`
	Advanced  AdvancedConfig  `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file and database locations
type StorageConfig struct {
	DataDirectory        string `xml:"DataDirectory"`
	AssetsDirectory      string `xml:"AssetsDirectory"`
	DatabasePath         string `xml:"DatabasePath"`
	DefaultMapsDirectory string `xml:"DefaultMapsDirectory"`
	// UseDatabase selects DuckDB; false keeps maps in memory.
	UseDatabase bool `xml:"UseDatabase"`
}

// EditorConfig contains boundary editor defaults
type EditorConfig struct {
	DefaultSnapSize       float64 `xml:"DefaultSnapSize"`
	PolygonCloseTolerance float64 `xml:"PolygonCloseTolerance"`
	OptimisticConcurrency bool    `xml:"OptimisticConcurrency"`
}

// ImageEditConfig contains AI image-edit service settings
type ImageEditConfig struct {
	Endpoint          string  `xml:"Endpoint"`
	TimeoutSeconds    int     `xml:"TimeoutSeconds"`
	RequestsPerMinute float64 `xml:"RequestsPerMinute"`
	Burst             int     `xml:"Burst"`
	MaxConcurrent     int     `xml:"MaxConcurrent"`
	JobRetentionMins  int     `xml:"JobRetentionMinutes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	JSONLogs             bool   `xml:"JSONLogs"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	DuckDBThreads        int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit    string `xml:"DuckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:        "./data",
			AssetsDirectory:      "./data/assets",
			DatabasePath:         "./data/boundary_maps.duckdb",
			DefaultMapsDirectory: "./data/defaults/maps",
			UseDatabase:          true,
		},
		Editor: EditorConfig{
			DefaultSnapSize:       0.01,
			PolygonCloseTolerance: 0.015,
			OptimisticConcurrency: false,
		},
		ImageEdit: ImageEditConfig{
			Endpoint:          "",
			TimeoutSeconds:    120,
			RequestsPerMinute: 6,
			Burst:             2,
			MaxConcurrent:     2,
			JobRetentionMins:  60,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			JSONLogs:             false,
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
		},
	}
}

// LoadConfig loads configuration from an XML file, writing the defaults
// there on first run. A .env file next to the config (or in the working
// directory) is loaded first so its values can override the file.
func LoadConfig(configPath string) (*AppConfig, error) {
	loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"), ".env")

	config := DefaultConfig()
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadDotEnv loads the first .env file that exists. Variables already set
// in the environment win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("failed to load .env file", "path", p, "error", err)
		}
		return
	}
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Room Editor Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every storage path that was left relative
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.AssetsDirectory = filepath.Join(dataDir, "assets")
		c.Storage.DatabasePath = filepath.Join(dataDir, "boundary_maps.duckdb")
		c.Storage.DefaultMapsDirectory = filepath.Join(dataDir, "defaults", "maps")
	}

	if endpoint := os.Getenv("IMAGE_EDIT_ENDPOINT"); endpoint != "" {
		c.ImageEdit.Endpoint = endpoint
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.AssetsDirectory,
		&c.Storage.DatabasePath,
		&c.Storage.DefaultMapsDirectory,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// Validate rejects settings the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Editor.DefaultSnapSize < 0 {
		return fmt.Errorf("default snap size must not be negative")
	}
	if c.Editor.PolygonCloseTolerance < 0 {
		return fmt.Errorf("polygon close tolerance must not be negative")
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// ImageEditTimeout returns the per-edit timeout.
func (c *AppConfig) ImageEditTimeout() time.Duration {
	return time.Duration(c.ImageEdit.TimeoutSeconds) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.AssetsDirectory,
		filepath.Dir(c.Storage.DatabasePath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
