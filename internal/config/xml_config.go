// Package config provides XML-based configuration management for
// self-contained deployment: a single config file next to the binary, created
// with defaults on first run.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"DiagramAnalyzer"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Vision model backend configuration
	Model ModelConfig `xml:"Model"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
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

// ModelConfig contains the OpenAI-compatible vision backend settings
type ModelConfig struct {
	BaseURL        string  `xml:"BaseURL"`
	APIKey         string  `xml:"APIKey"`
	Name           string  `xml:"Name"`
	MaxTokens      int     `xml:"MaxTokens"`
	Temperature    float32 `xml:"Temperature"`
	TopP           float32 `xml:"TopP"`
	RequestTimeout int     `xml:"RequestTimeoutSeconds"`
	PromptFile     string  `xml:"PromptFile"`
}

// StorageConfig contains data directory and history settings
type StorageConfig struct {
	DataDirectory string `xml:"DataDirectory"`
	EnableHistory bool   `xml:"EnableHistory"`
	HistoryFile   string `xml:"HistoryFile"`
}

// AdvancedConfig contains logging and tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8000,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 300,
			IdleTimeout:  120,
			BodyLimit:    "32M",
		},
		Model: ModelConfig{
			BaseURL:        "http://localhost:22227",
			APIKey:         "",
			Name:           "qwen2-vl-7b-instruct",
			MaxTokens:      10000,
			Temperature:    0,
			TopP:           0.9,
			RequestTimeout: 300,
			PromptFile:     "",
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			EnableHistory: true,
			HistoryFile:   "history.duckdb",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Diagram Analyzer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
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

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if baseURL := os.Getenv("LMSTUDIO_BASE_URL"); baseURL != "" {
		c.Model.BaseURL = baseURL
	}

	if token := os.Getenv("LMSTUDIO_TOKEN"); token != "" {
		c.Model.APIKey = token
	}

	if name := os.Getenv("MODEL_NAME"); name != "" {
		c.Model.Name = name
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if c.Model.PromptFile != "" && !filepath.IsAbs(c.Model.PromptFile) {
		c.Model.PromptFile = filepath.Join(configDir, c.Model.PromptFile)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetHistoryPath returns the absolute path of the history database file
func (c *AppConfig) GetHistoryPath() string {
	if filepath.IsAbs(c.Storage.HistoryFile) {
		return c.Storage.HistoryFile
	}
	return filepath.Join(c.Storage.DataDirectory, c.Storage.HistoryFile)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.DataDirectory, err)
	}
	return nil
}
