/*
Package config provides configuration management for wsmount with multi-source support.

Configuration is assembled from compiled-in defaults, an optional YAML file, WSMOUNT_*
environment variables and finally command-line overrides, in that order of precedence:

	┌─────────────────────────────────────────────┐
	│          Command-line flags                 │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (WSMOUNT_*)                       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Configuration Structure

Global Settings:
- Logging level, output file and format (console or json)
- Size-based rotation of the log file

Workspace Settings:
- Root directory under which resources are mounted (default ~/.wsmount/workspace)
- Resource property that names a resource's folder
- Maximum folder nesting depth

Mount Settings:
- gcsfuse and mount-s3 binaries
- Implicit directories, read-only mode and metadata caching
- Number of resources mounted in parallel

Catalog Settings:
- Path to the resource snapshot exported by the resource directory
- Retry policy for reading it

S3 and Metrics Settings:
- Region, endpoint and addressing style used when probing S3 prefixes
- Prometheus textfile output

# Usage Examples

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/wsmount/config.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	cfg.Global.LogLevel = "DEBUG"
	if err := cfg.Validate(); err != nil {
		return err
	}
	root, err := cfg.RootDir()

Configuration file format:

	global:
	  log_level: INFO
	  log_format: console
	  log_max_size_mb: 10
	  log_max_backups: 3
	  log_compress: true
	  component_levels:
	    process: DEBUG

	workspace:
	  root_dir: ~/.wsmount/workspace
	  folder_property_key: terra-folder-id
	  max_folder_depth: 64

	mount:
	  gcs_fuse_binary: gcsfuse
	  s3_fuse_binary: mount-s3
	  implicit_dirs: true
	  read_only: false
	  disable_cache: false
	  parallelism: 1

	catalog:
	  file: ~/.wsmount/catalog.yaml
	  retry:
	    max_attempts: 3
	    initial_delay: 200ms
	    max_delay: 5s

	s3:
	  region: us-east-1
	  endpoint: ""
	  force_path_style: false

	metrics:
	  enabled: true
	  textfile: /var/lib/node_exporter/textfile/wsmount.prom

Environment variable mapping:

	WSMOUNT_LOG_LEVEL="DEBUG"
	WSMOUNT_ROOT_DIR="/srv/workspace"
	WSMOUNT_PARALLELISM="4"
	WSMOUNT_DISABLE_CACHE="true"
	WSMOUNT_CATALOG_FILE="/srv/catalog.json"
	WSMOUNT_S3_ENDPOINT="http://localhost:9000"
	WSMOUNT_METRICS_TEXTFILE="/tmp/wsmount.prom"

# Errors

Load failures carry CONFIG_LOAD, save failures CONFIG_SAVE and validation failures
CONFIG_VALIDATION, so callers can use errors.HasCode from pkg/errors.
*/
package config
