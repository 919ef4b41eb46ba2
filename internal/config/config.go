// Package config provides configuration management for rollout runs.
// A run is described by a YAML plan document. Selected settings can be
// overridden through environment variables with the ROLLOUT_ prefix.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied to an incomplete plan document.
const (
	DefaultPort                  = 22
	DefaultUsername              = "root"
	DefaultInstallDir            = "/opt/splunkforwarder"
	DefaultStagingDir            = "/tmp"
	DefaultMaxConcurrentInstalls = 3
	DefaultDelaySeconds          = 5
	DefaultConnectTimeoutSecs    = 30
	DefaultCommandTimeoutSecs    = 600
	DefaultMinMemoryMB           = 512
	DefaultMinDiskMB             = 2048
)

// RunConfig is the complete configuration for a single rollout run.
type RunConfig struct {
	// DownloadURL is the package download URL (required).
	DownloadURL string `yaml:"download_url"`
	// DeploymentServer is the deployment server address as host:port (required).
	DeploymentServer string `yaml:"deployment_server"`
	// ReceivingIndexer is the receiving indexer address as host:port (required).
	ReceivingIndexer string `yaml:"receiving_indexer"`
	// InstallDir is the absolute install directory on target hosts (default: /opt/splunkforwarder).
	InstallDir string `yaml:"install_dir"`
	// StagingDir is the absolute staging directory for the downloaded package (default: /tmp).
	StagingDir string `yaml:"staging_dir"`

	// MaxConcurrentInstalls caps how many hosts are worked in parallel (default: 3).
	MaxConcurrentInstalls int `yaml:"max_concurrent_installs"`
	// DelayBetweenBatchesSeconds is the pause between batches (default: 5).
	// A pointer so an explicit zero survives defaulting.
	DelayBetweenBatchesSeconds *int `yaml:"delay_between_batches_seconds"`

	// ForceReinstall installs even on hosts that already have the package.
	ForceReinstall bool `yaml:"force_reinstall"`
	// CleanupAfterInstall removes the staged package after a successful install (default: true).
	CleanupAfterInstall *bool `yaml:"cleanup_after_install"`

	// ConnectTimeoutSeconds is the SSH connection timeout (default: 30).
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
	// CommandTimeoutSeconds is the per-command timeout, sized for downloads (default: 600).
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`

	// ResourceLimits are the minimum resources a host must have.
	ResourceLimits ResourceLimits `yaml:"resource_limits"`

	// Hosts is the target fleet (required, at least one).
	Hosts []HostTarget `yaml:"hosts"`

	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	History  HistoryConfig  `yaml:"history"`
	Artifact ArtifactConfig `yaml:"artifact"`
}

// ResourceLimits holds the minimum free resources required on a host
// before an install is attempted.
type ResourceLimits struct {
	// MinMemoryMB is the minimum available memory in MB (default: 512).
	MinMemoryMB int `yaml:"min_memory_mb"`
	// MinDiskMB is the minimum free disk in MB on the install filesystem (default: 2048).
	MinDiskMB int `yaml:"min_disk_mb"`
}

// HostTarget describes a single SSH target.
type HostTarget struct {
	// Address is the host name or IP (required).
	Address string `yaml:"address"`
	// Port is the SSH port (default: 22).
	Port int `yaml:"port"`
	// Username is the SSH user (default: root).
	Username string `yaml:"username"`
	// Password authenticates the SSH session. One of Password or KeyFile is required.
	Password string `yaml:"password"`
	// KeyFile is the path to a private key file on the operator machine.
	KeyFile string `yaml:"key_file"`
	// OSFamily selects the remote command set (default: linux).
	OSFamily string `yaml:"os_family"`
}

// Addr returns the host address with port, suitable for net.Dial.
func (h HostTarget) Addr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error) (default: info).
	Level string `yaml:"level"`
	// Format is the log format (json, console) (default: console).
	Format string `yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled serves a /metrics endpoint for the duration of the run.
	Enabled bool `yaml:"enabled"`
	// Listen is the listen address for the metrics server (default: :9091).
	Listen string `yaml:"listen"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	// Enabled enables span export (default: false).
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP collector endpoint (e.g., "localhost:4318").
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS for the tracing connection (default: true).
	Insecure *bool `yaml:"insecure"`
	// SampleRate is the sampling rate (0.0 to 1.0) (default: 1.0).
	SampleRate *float64 `yaml:"sample_rate"`
	// Environment is the deployment environment (e.g., "production").
	Environment string `yaml:"environment"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	// Path is the SQLite database file for run history.
	// Empty disables history recording.
	Path string `yaml:"path"`
}

// ArtifactConfig holds result artifact settings.
type ArtifactConfig struct {
	// Path is the local file for the JSON result artifact. Empty means
	// a timestamped file in the working directory.
	Path string `yaml:"path"`
	// Store optionally uploads the artifact to S3-compatible storage.
	Store *StoreConfig `yaml:"store"`
}

// StoreConfig holds S3/MinIO settings for artifact upload.
type StoreConfig struct {
	// Endpoint is the S3/MinIO endpoint (required).
	Endpoint string `yaml:"endpoint"`
	// Bucket is the bucket name (required).
	Bucket string `yaml:"bucket"`
	// Region is the storage region (default: us-east-1).
	Region string `yaml:"region"`
	// AccessKeyID is the access key (required).
	AccessKeyID string `yaml:"access_key_id"`
	// SecretAccessKey is the secret key (required).
	SecretAccessKey string `yaml:"secret_access_key"`
	// UseSSL enables TLS for the connection (default: true).
	UseSSL *bool `yaml:"use_ssl"`
}

// Load reads a plan document from the given path, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a plan document, applies defaults and environment
// overrides, and validates the result.
func Parse(data []byte) (*RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("plan validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-valued fields.
func (c *RunConfig) applyDefaults() {
	if c.InstallDir == "" {
		c.InstallDir = DefaultInstallDir
	}
	if c.StagingDir == "" {
		c.StagingDir = DefaultStagingDir
	}
	if c.MaxConcurrentInstalls == 0 {
		c.MaxConcurrentInstalls = DefaultMaxConcurrentInstalls
	}
	if c.DelayBetweenBatchesSeconds == nil {
		v := DefaultDelaySeconds
		c.DelayBetweenBatchesSeconds = &v
	}
	if c.CleanupAfterInstall == nil {
		v := true
		c.CleanupAfterInstall = &v
	}
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = DefaultConnectTimeoutSecs
	}
	if c.CommandTimeoutSeconds == 0 {
		c.CommandTimeoutSeconds = DefaultCommandTimeoutSecs
	}
	if c.ResourceLimits.MinMemoryMB == 0 {
		c.ResourceLimits.MinMemoryMB = DefaultMinMemoryMB
	}
	if c.ResourceLimits.MinDiskMB == 0 {
		c.ResourceLimits.MinDiskMB = DefaultMinDiskMB
	}
	for i := range c.Hosts {
		if c.Hosts[i].Port == 0 {
			c.Hosts[i].Port = DefaultPort
		}
		if c.Hosts[i].Username == "" {
			c.Hosts[i].Username = DefaultUsername
		}
		if c.Hosts[i].OSFamily == "" {
			c.Hosts[i].OSFamily = "linux"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9091"
	}
	if c.Tracing.Insecure == nil {
		v := true
		c.Tracing.Insecure = &v
	}
	if c.Tracing.SampleRate == nil {
		v := 1.0
		c.Tracing.SampleRate = &v
	}
	if c.Artifact.Store != nil {
		if c.Artifact.Store.Region == "" {
			c.Artifact.Store.Region = "us-east-1"
		}
		if c.Artifact.Store.UseSSL == nil {
			v := true
			c.Artifact.Store.UseSSL = &v
		}
	}
}

// applyEnvOverrides applies ROLLOUT_ environment variables on top of the
// plan document. Secrets in particular are better passed this way.
func (c *RunConfig) applyEnvOverrides() {
	c.MaxConcurrentInstalls = getEnvInt("ROLLOUT_MAX_CONCURRENT_INSTALLS", c.MaxConcurrentInstalls)
	*c.DelayBetweenBatchesSeconds = getEnvInt("ROLLOUT_DELAY_BETWEEN_BATCHES_SECONDS", *c.DelayBetweenBatchesSeconds)
	c.ConnectTimeoutSeconds = getEnvInt("ROLLOUT_CONNECT_TIMEOUT_SECONDS", c.ConnectTimeoutSeconds)
	c.CommandTimeoutSeconds = getEnvInt("ROLLOUT_COMMAND_TIMEOUT_SECONDS", c.CommandTimeoutSeconds)
	c.ForceReinstall = getEnvBool("ROLLOUT_FORCE_REINSTALL", c.ForceReinstall)
	c.Log.Level = getEnv("ROLLOUT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("ROLLOUT_LOG_FORMAT", c.Log.Format)
	c.History.Path = getEnv("ROLLOUT_HISTORY_PATH", c.History.Path)

	// A fleet-wide password override fills hosts that carry no credentials.
	if password := os.Getenv("ROLLOUT_SSH_PASSWORD"); password != "" {
		for i := range c.Hosts {
			if c.Hosts[i].Password == "" && c.Hosts[i].KeyFile == "" {
				c.Hosts[i].Password = password
			}
		}
	}

	if c.Artifact.Store != nil {
		c.Artifact.Store.AccessKeyID = getEnv("ROLLOUT_STORE_ACCESS_KEY_ID", c.Artifact.Store.AccessKeyID)
		c.Artifact.Store.SecretAccessKey = getEnv("ROLLOUT_STORE_SECRET_ACCESS_KEY", c.Artifact.Store.SecretAccessKey)
	}
}

// DelayBetweenBatches returns the inter-batch delay as a duration.
func (c *RunConfig) DelayBetweenBatches() time.Duration {
	return time.Duration(*c.DelayBetweenBatchesSeconds) * time.Second
}

// ConnectTimeout returns the SSH connect timeout as a duration.
func (c *RunConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// CommandTimeout returns the per-command timeout as a duration.
func (c *RunConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// Cleanup reports whether the staged package should be removed after install.
func (c *RunConfig) Cleanup() bool {
	return c.CleanupAfterInstall == nil || *c.CleanupAfterInstall
}

// PackageName returns the package file name derived from the download URL.
func (c *RunConfig) PackageName() string {
	u, err := url.Parse(c.DownloadURL)
	if err != nil {
		return path.Base(c.DownloadURL)
	}
	return path.Base(u.Path)
}

// PackagePath returns the staged package path on target hosts.
func (c *RunConfig) PackagePath() string {
	return path.Join(c.StagingDir, c.PackageName())
}

// packageSuffixes are the supported package formats.
var packageSuffixes = []string{".tgz", ".tar.gz", ".rpm", ".deb"}

// validPackageName reports whether the package name carries a supported suffix.
func validPackageName(name string) bool {
	for _, suffix := range packageSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Validate checks that the plan is complete and internally consistent.
func (c *RunConfig) Validate() error {
	var errs []error

	if c.DownloadURL == "" {
		errs = append(errs, errors.New("download_url is required"))
	} else {
		u, err := url.Parse(c.DownloadURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, errors.New("download_url must be an http or https URL"))
		} else if !validPackageName(path.Base(u.Path)) {
			errs = append(errs, fmt.Errorf("download_url package %q has unsupported format, expected one of: %s",
				path.Base(u.Path), strings.Join(packageSuffixes, ", ")))
		}
	}

	if c.DeploymentServer == "" {
		errs = append(errs, errors.New("deployment_server is required"))
	} else if !validHostPort(c.DeploymentServer) {
		errs = append(errs, errors.New("deployment_server must be host:port"))
	}
	if c.ReceivingIndexer == "" {
		errs = append(errs, errors.New("receiving_indexer is required"))
	} else if !validHostPort(c.ReceivingIndexer) {
		errs = append(errs, errors.New("receiving_indexer must be host:port"))
	}

	if !strings.HasPrefix(c.InstallDir, "/") {
		errs = append(errs, errors.New("install_dir must be an absolute path"))
	}
	if !strings.HasPrefix(c.StagingDir, "/") {
		errs = append(errs, errors.New("staging_dir must be an absolute path"))
	}

	if c.MaxConcurrentInstalls < 1 {
		errs = append(errs, errors.New("max_concurrent_installs must be at least 1"))
	}
	if *c.DelayBetweenBatchesSeconds < 0 {
		errs = append(errs, errors.New("delay_between_batches_seconds cannot be negative"))
	}
	if c.ConnectTimeoutSeconds < 1 {
		errs = append(errs, errors.New("connect_timeout_seconds must be at least 1"))
	}
	if c.CommandTimeoutSeconds < 1 {
		errs = append(errs, errors.New("command_timeout_seconds must be at least 1"))
	}

	if c.ResourceLimits.MinMemoryMB < 1 {
		errs = append(errs, errors.New("resource_limits.min_memory_mb must be at least 1"))
	}
	if c.ResourceLimits.MinDiskMB < 1 {
		errs = append(errs, errors.New("resource_limits.min_disk_mb must be at least 1"))
	}

	if len(c.Hosts) == 0 {
		errs = append(errs, errors.New("at least one host is required"))
	}
	seen := make(map[string]bool, len(c.Hosts))
	for i, h := range c.Hosts {
		if h.Address == "" {
			errs = append(errs, fmt.Errorf("hosts[%d]: address is required", i))
			continue
		}
		if seen[h.Addr()] {
			errs = append(errs, fmt.Errorf("hosts[%d]: duplicate host %s", i, h.Addr()))
		}
		seen[h.Addr()] = true
		if h.Port < 1 || h.Port > 65535 {
			errs = append(errs, fmt.Errorf("hosts[%d]: port must be between 1 and 65535", i))
		}
		if h.Password == "" && h.KeyFile == "" {
			errs = append(errs, fmt.Errorf("hosts[%d]: password or key_file is required for %s", i, h.Address))
		}
		if h.OSFamily != "linux" {
			errs = append(errs, fmt.Errorf("hosts[%d]: unsupported os_family %q, only linux is supported", i, h.OSFamily))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, errors.New("log.level must be one of: debug, info, warn, error"))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, errors.New("log.format must be one of: json, console"))
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}

	if c.Artifact.Store != nil {
		if c.Artifact.Path == "" {
			errs = append(errs, errors.New("artifact.path is required when artifact.store is set"))
		}
		if c.Artifact.Store.Endpoint == "" {
			errs = append(errs, errors.New("artifact.store.endpoint is required"))
		}
		if c.Artifact.Store.Bucket == "" {
			errs = append(errs, errors.New("artifact.store.bucket is required"))
		}
		if c.Artifact.Store.AccessKeyID == "" {
			errs = append(errs, errors.New("artifact.store.access_key_id is required"))
		}
		if c.Artifact.Store.SecretAccessKey == "" {
			errs = append(errs, errors.New("artifact.store.secret_access_key is required"))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// validHostPort reports whether s parses as host:port.
func validHostPort(s string) bool {
	host, port, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p >= 1 && p <= 65535
}

// ValidationError contains multiple validation errors.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap returns the underlying errors for errors.Is/As compatibility.
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
