// Package config provides file-based configuration management. XML is the
// native format; .yaml/.yml files are read with the same schema.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"Roomify" yaml:"-"`

	Server     ServerConfig     `xml:"Server" yaml:"server"`
	Storage    StorageConfig    `xml:"Storage" yaml:"storage"`
	Upload     UploadConfig     `xml:"Upload" yaml:"upload"`
	Processing ProcessingConfig `xml:"Processing" yaml:"processing"`
	Security   SecurityConfig   `xml:"Security" yaml:"security"`
	Advanced   AdvancedConfig   `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCors"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// StorageConfig contains persistence settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory" yaml:"dataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory" yaml:"uploadsDirectory"`
	Driver           string `xml:"Driver" yaml:"driver"` // "duckdb" or "sqlite"
	DatabaseFile     string `xml:"DatabaseFile" yaml:"databaseFile"`
	Visibility       string `xml:"Visibility" yaml:"visibility"`
}

// UploadConfig contains upload widget settings
type UploadConfig struct {
	ProgressIntervalMs int    `xml:"ProgressIntervalMs" yaml:"progressIntervalMs"`
	ProgressIncrement  int    `xml:"ProgressIncrement" yaml:"progressIncrement"`
	RedirectDelayMs    int    `xml:"RedirectDelayMs" yaml:"redirectDelayMs"`
	AllowedDropTypes   string `xml:"AllowedDropTypes" yaml:"allowedDropTypes"`
	// MaxFileSizeText is shown to users. It is not enforced.
	MaxFileSizeText string `xml:"MaxFileSizeText" yaml:"maxFileSizeText"`
}

// ProcessingConfig contains session lifecycle settings
type ProcessingConfig struct {
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes" yaml:"sessionTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
	MaxSessions            int `xml:"MaxSessions" yaml:"maxSessions"`
	HandoffTTLSeconds      int `xml:"HandoffTTLSeconds" yaml:"handoffTtlSeconds"`
	SaveTimeoutSeconds     int `xml:"SaveTimeoutSeconds" yaml:"saveTimeoutSeconds"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RequireAuth bool   `xml:"RequireAuthentication" yaml:"requireAuthentication"`
	AuthToken   string `xml:"AuthToken" yaml:"authToken"`
}

// AdvancedConfig contains logging options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel" yaml:"logLevel"`
	PrettyLogs           bool   `xml:"PrettyLogs" yaml:"prettyLogs"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
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
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			Driver:           "duckdb",
			DatabaseFile:     "./data/projects.duckdb",
			Visibility:       "private",
		},
		Upload: UploadConfig{
			ProgressIntervalMs: 100,
			ProgressIncrement:  15,
			RedirectDelayMs:    600,
			AllowedDropTypes:   "image/jpeg,image/png",
			MaxFileSizeText:    "Maximum file size 50 MB",
		},
		Processing: ProcessingConfig{
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			MaxSessions:            100,
			HandoffTTLSeconds:      300,
			SaveTimeoutSeconds:     30,
		},
		Security: SecurityConfig{
			RequireAuth: false,
			AuthToken:   "",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			PrettyLogs:           false,
			EnableRequestLogging: true,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from an XML or YAML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = xml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration, choosing the format by file extension
func (c *AppConfig) Save(configPath string) error {
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var content []byte
	if isYAML(configPath) {
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# Roomify configuration\n"), out...)
	} else {
		out, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Roomify Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, out...)
	}

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
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.DatabaseFile = filepath.Join(dataDir, filepath.Base(c.Storage.DatabaseFile))
	}

	if driver := os.Getenv("ROOMIFY_STORE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}

	if token := os.Getenv("ROOMIFY_AUTH_TOKEN"); token != "" {
		c.Security.AuthToken = token
		c.Security.RequireAuth = true
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{&c.Storage.DataDirectory, &c.Storage.UploadsDirectory, &c.Storage.DatabaseFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// DropTypes returns the drag-and-drop MIME allow-list
func (c *AppConfig) DropTypes() []string {
	var out []string
	for _, t := range strings.Split(c.Upload.AllowedDropTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ProgressInterval returns the tick interval
func (c *AppConfig) ProgressInterval() time.Duration {
	return time.Duration(c.Upload.ProgressIntervalMs) * time.Millisecond
}

// RedirectDelay returns the settle delay before completion fires
func (c *AppConfig) RedirectDelay() time.Duration {
	return time.Duration(c.Upload.RedirectDelayMs) * time.Millisecond
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		filepath.Dir(c.Storage.DatabaseFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
