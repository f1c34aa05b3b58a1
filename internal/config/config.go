package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/wsmount/wsmount/internal/catalog"
	"github.com/wsmount/wsmount/internal/metrics"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/retry"
	"github.com/wsmount/wsmount/pkg/utils"
)

// Default values shared by NewDefault and the CLI help text.
const (
	DefaultRootDir           = "~/.wsmount/workspace"
	DefaultFolderPropertyKey = "terra-folder-id"
	DefaultMaxFolderDepth    = 64
	DefaultGcsFuseBinary     = "gcsfuse"
	DefaultS3FuseBinary      = "mount-s3"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global    GlobalConfig     `yaml:"global"`
	Workspace WorkspaceConfig  `yaml:"workspace"`
	Mount     MountConfig      `yaml:"mount"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	S3        catalog.S3Config `yaml:"s3"`
	Metrics   metrics.Config   `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogFormat     string `yaml:"log_format"`
	LogMaxSizeMB  int64  `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogCompress   bool   `yaml:"log_compress"`
	// ComponentLevels raise or lower the level of single components, such as
	// "process" to see every command that is run.
	ComponentLevels map[string]string `yaml:"component_levels"`
}

// WorkspaceConfig describes where resources are mounted and how the folder
// tree is read from resource properties.
type WorkspaceConfig struct {
	RootDir           string `yaml:"root_dir"`
	FolderPropertyKey string `yaml:"folder_property_key"`
	MaxFolderDepth    int    `yaml:"max_folder_depth"`
}

// MountConfig represents FUSE mount settings
type MountConfig struct {
	GcsFuseBinary string `yaml:"gcs_fuse_binary"`
	S3FuseBinary  string `yaml:"s3_fuse_binary"`
	ImplicitDirs  bool   `yaml:"implicit_dirs"`
	ReadOnly      bool   `yaml:"read_only"`
	DisableCache  bool   `yaml:"disable_cache"`
	Parallelism   int    `yaml:"parallelism"`
}

// CatalogConfig represents resource catalog settings
type CatalogConfig struct {
	File  string       `yaml:"file"`
	Retry retry.Config `yaml:"retry"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFile:       "",
			LogFormat:     "console",
			LogMaxSizeMB:  10,
			LogMaxBackups: 3,
			LogCompress:   true,
		},
		Workspace: WorkspaceConfig{
			RootDir:           DefaultRootDir,
			FolderPropertyKey: DefaultFolderPropertyKey,
			MaxFolderDepth:    DefaultMaxFolderDepth,
		},
		Mount: MountConfig{
			GcsFuseBinary: DefaultGcsFuseBinary,
			S3FuseBinary:  DefaultS3FuseBinary,
			ImplicitDirs:  true,
			ReadOnly:      false,
			DisableCache:  false,
			Parallelism:   1,
		},
		Catalog: CatalogConfig{
			File:  "~/.wsmount/catalog.yaml",
			Retry: retry.DefaultConfig(),
		},
		S3: catalog.S3Config{
			Region: "us-east-1",
		},
		Metrics: metrics.Config{
			Enabled:   false,
			Textfile:  "",
			Namespace: "wsmount",
			Labels:    make(map[string]string),
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").
			WithPath(filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").
			WithPath(filename)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables. Malformed
// numeric and duration values are reported rather than ignored.
func (c *Configuration) LoadFromEnv() error {
	var problems []string

	// Global settings
	if val := os.Getenv("WSMOUNT_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("WSMOUNT_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("WSMOUNT_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	// Workspace settings
	if val := os.Getenv("WSMOUNT_ROOT_DIR"); val != "" {
		c.Workspace.RootDir = val
	}
	if val := os.Getenv("WSMOUNT_FOLDER_PROPERTY_KEY"); val != "" {
		c.Workspace.FolderPropertyKey = val
	}
	if val := os.Getenv("WSMOUNT_MAX_FOLDER_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			c.Workspace.MaxFolderDepth = depth
		} else {
			problems = append(problems, "WSMOUNT_MAX_FOLDER_DEPTH")
		}
	}

	// Mount settings
	if val := os.Getenv("WSMOUNT_GCS_FUSE_BINARY"); val != "" {
		c.Mount.GcsFuseBinary = val
	}
	if val := os.Getenv("WSMOUNT_S3_FUSE_BINARY"); val != "" {
		c.Mount.S3FuseBinary = val
	}
	if val := os.Getenv("WSMOUNT_IMPLICIT_DIRS"); val != "" {
		c.Mount.ImplicitDirs = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("WSMOUNT_READ_ONLY"); val != "" {
		c.Mount.ReadOnly = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("WSMOUNT_DISABLE_CACHE"); val != "" {
		c.Mount.DisableCache = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("WSMOUNT_PARALLELISM"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Mount.Parallelism = n
		} else {
			problems = append(problems, "WSMOUNT_PARALLELISM")
		}
	}

	// Catalog settings
	if val := os.Getenv("WSMOUNT_CATALOG_FILE"); val != "" {
		c.Catalog.File = val
	}
	if val := os.Getenv("WSMOUNT_CATALOG_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Catalog.Retry.MaxAttempts = n
		} else {
			problems = append(problems, "WSMOUNT_CATALOG_MAX_ATTEMPTS")
		}
	}
	if val := os.Getenv("WSMOUNT_CATALOG_INITIAL_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Catalog.Retry.InitialDelay = d
		} else {
			problems = append(problems, "WSMOUNT_CATALOG_INITIAL_DELAY")
		}
	}

	// S3 settings
	if val := os.Getenv("WSMOUNT_S3_REGION"); val != "" {
		c.S3.Region = val
	}
	if val := os.Getenv("WSMOUNT_S3_ENDPOINT"); val != "" {
		c.S3.Endpoint = val
	}
	if val := os.Getenv("WSMOUNT_S3_FORCE_PATH_STYLE"); val != "" {
		c.S3.ForcePathStyle = strings.ToLower(val) == "true"
	}

	// Metrics settings
	if val := os.Getenv("WSMOUNT_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("WSMOUNT_METRICS_TEXTFILE"); val != "" {
		c.Metrics.Textfile = val
	}

	if len(problems) > 0 {
		return errors.Newf(errors.ErrCodeConfigLoad, "malformed environment variables: %s",
			strings.Join(problems, ", ")).WithComponent("config")
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to marshal config").WithComponent("config")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to create config directory").
			WithComponent("config").
			WithPath(filepath.Dir(filename))
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to write config file").
			WithComponent("config").
			WithPath(filename)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Newf(errors.ErrCodeConfigValidation, format, args...).WithComponent("config")
	}

	if strings.TrimSpace(c.Workspace.RootDir) == "" {
		return invalid("workspace.root_dir must not be empty")
	}
	if strings.TrimSpace(c.Workspace.FolderPropertyKey) == "" {
		return invalid("workspace.folder_property_key must not be empty")
	}
	if c.Workspace.MaxFolderDepth <= 0 {
		return invalid("workspace.max_folder_depth must be greater than 0")
	}

	if c.Global.LogMaxSizeMB < 0 || c.Global.LogMaxBackups < 0 {
		return invalid("log rotation limits must not be negative")
	}

	if c.Mount.GcsFuseBinary == "" || c.Mount.S3FuseBinary == "" {
		return invalid("mount binaries must not be empty")
	}
	if c.Mount.Parallelism <= 0 {
		return invalid("mount.parallelism must be greater than 0")
	}

	if c.Catalog.Retry.MaxAttempts < 0 {
		return invalid("catalog.retry.max_attempts must not be negative")
	}
	if c.Catalog.Retry.MaxDelay > 0 && c.Catalog.Retry.InitialDelay > c.Catalog.Retry.MaxDelay {
		return invalid("catalog.retry.initial_delay (%s) exceeds max_delay (%s)",
			c.Catalog.Retry.InitialDelay, c.Catalog.Retry.MaxDelay)
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return invalid("metrics.textfile is required when metrics are enabled")
	}

	validLogLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil || strings.ToUpper(c.Global.LogLevel) == "FATAL" {
		return invalid("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}
	for component, level := range c.Global.ComponentLevels {
		if _, err := utils.ParseLogLevel(level); err != nil || strings.ToUpper(level) == "FATAL" {
			return invalid("invalid component_levels.%s: %s (must be one of: %s)",
				component, level, strings.Join(validLogLevels, ", "))
		}
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return invalid("invalid log_format: %s (must be json or console)", c.Global.LogFormat)
	}

	return nil
}

// RootDir returns the absolute workspace root with "~" expanded.
func (c *Configuration) RootDir() (string, error) {
	return absPath(c.Workspace.RootDir)
}

// CatalogFile returns the absolute catalog snapshot path with "~" expanded.
func (c *Configuration) CatalogFile() (string, error) {
	return absPath(c.Catalog.File)
}

// LoggerConfig translates the global section into a logger configuration.
func (c *Configuration) LoggerConfig() (*utils.StructuredLoggerConfig, error) {
	level, err := utils.ParseLogLevel(c.Global.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid log level").WithComponent("config")
	}
	format, err := utils.ParseLogFormat(c.Global.LogFormat)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid log format").WithComponent("config")
	}

	cfg := utils.DefaultStructuredLoggerConfig()
	cfg.Level = level
	cfg.Format = format
	if len(c.Global.ComponentLevels) > 0 {
		cfg.ComponentLevels = make(map[string]utils.LogLevel, len(c.Global.ComponentLevels))
		for component, name := range c.Global.ComponentLevels {
			componentLevel, err := utils.ParseLogLevel(name)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid component log level").
					WithComponent("config").
					WithContext("component", component)
			}
			cfg.ComponentLevels[component] = componentLevel
		}
	}
	if c.Global.LogFile != "" {
		file, err := absPath(c.Global.LogFile)
		if err != nil {
			return nil, err
		}
		cfg.File = file
		cfg.MaxSizeMB = c.Global.LogMaxSizeMB
		cfg.MaxBackups = c.Global.LogMaxBackups
		cfg.Compress = c.Global.LogCompress
	}
	return cfg, nil
}

func absPath(path string) (string, error) {
	expanded, err := utils.ExpandHome(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to expand path").
			WithComponent("config").
			WithPath(path)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to resolve path").
			WithComponent("config").
			WithPath(path)
	}
	return abs, nil
}

// String renders the configuration as YAML, with secrets redacted.
func (c *Configuration) String() string {
	redacted := *c
	if redacted.S3.SecretAccessKey != "" {
		redacted.S3.SecretAccessKey = "REDACTED"
	}
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
