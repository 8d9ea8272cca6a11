package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	// ModeCrawl walks the tree and applies the job's file and directory rules.
	ModeCrawl Mode = "crawl"
	// ModeHunt deletes every directory whose name is in DirectoryNames.
	ModeHunt Mode = "hunt"
	// ModePurge empties the root and keeps the root directory.
	ModePurge Mode = "purge"
)

// Job is one traversal: a root plus the rules applied while walking it.
type Job struct {
	Name string `yaml:"name" json:"name"`
	Root string `yaml:"root" json:"root"`
	Mode Mode   `yaml:"mode" json:"mode"`

	DirectoryNames   []string `yaml:"directory_names" json:"directory_names,omitempty"`
	DirectoryPattern string   `yaml:"directory_pattern" json:"directory_pattern,omitempty"`
	FilePattern      string   `yaml:"file_pattern" json:"file_pattern,omitempty"`
	DirectoriesOnly  bool     `yaml:"directories_only" json:"directories_only"`

	DeleteMatchedDirectories bool   `yaml:"delete_matched_directories" json:"delete_matched_directories"`
	PreserveMatchedContents  bool   `yaml:"preserve_matched_contents" json:"preserve_matched_contents"` // delete contents, keep the directory
	DeleteMatchedFiles       bool   `yaml:"delete_matched_files" json:"delete_matched_files"`
	MinFileAgeDays           int    `yaml:"min_file_age_days" json:"min_file_age_days"`
	FileAction               string `yaml:"file_action" json:"file_action,omitempty"` // custom statistics action for matched files

	DryRun bool `yaml:"dry_run" json:"dry_run"`
}

type PrometheusCfg struct {
	Port int `yaml:"port" json:"port"`
}

type LoggingCfg struct {
	Dir          string `yaml:"dir" json:"dir"`
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

// APICfg configures the HTTP API over run history. Port 0 disables it.
type APICfg struct {
	Port          int     `yaml:"port" json:"port"`
	JWTSecretFile string  `yaml:"jwt_secret_file" json:"jwt_secret_file,omitempty"`
	TokenTTLHours int     `yaml:"token_ttl_hours" json:"token_ttl_hours"`
	TLSCert       string  `yaml:"tls_cert" json:"tls_cert,omitempty"`
	TLSKey        string  `yaml:"tls_key" json:"tls_key,omitempty"`
	RateLimit     float64 `yaml:"rate_limit" json:"rate_limit"` // requests per second per client
	RateBurst     int     `yaml:"rate_burst" json:"rate_burst"`
}

type ResourceLimits struct {
	MaxCPUPercent float64 `yaml:"max_cpu_percent" json:"max_cpu_percent"` // 0 disables throttling
}

type Config struct {
	Jobs                 []Job          `yaml:"jobs" json:"jobs"`
	IntervalMinutes      int            `yaml:"interval_minutes" json:"interval_minutes"`
	Prometheus           PrometheusCfg  `yaml:"prometheus" json:"prometheus"`
	API                  APICfg         `yaml:"api" json:"api"`
	Logging              LoggingCfg     `yaml:"logging" json:"logging"`
	ResourceLimits       ResourceLimits `yaml:"resource_limits" json:"resource_limits"`
	ProtectedPaths       []string       `yaml:"protected_paths" json:"protected_paths"`
	NFSTimeout           int            `yaml:"nfs_timeout_seconds" json:"nfs_timeout_seconds"`
	DatabasePath         string         `yaml:"database_path" json:"database_path"`
	LockDir              string         `yaml:"lock_dir" json:"lock_dir"`
	HistoryRetentionDays int            `yaml:"history_retention_days" json:"history_retention_days"`
}

var (
	errNoJobs          = errors.New("configuration must specify at least one job")
	errInvalidPath     = errors.New("path must be absolute")
	errNoName          = errors.New("job name is required")
	errDuplicateName   = errors.New("duplicate job name")
	errInvalidMode     = errors.New("mode must be crawl, hunt or purge")
	errNoNames         = errors.New("hunt mode requires directory_names")
	errNegativeAge     = errors.New("min_file_age_days cannot be negative")
	errPreserveNoMatch = errors.New("preserve_matched_contents requires delete_matched_directories")
	errDeleteNoPattern = errors.New("delete_matched_directories requires directory_pattern")
	errFileConflict    = errors.New("file_action cannot be combined with delete_matched_files")
	errNegativeLimit   = errors.New("max_cpu_percent must be between 0 and 100")
	errInvalidPort     = errors.New("port must be between 0 and 65535")
	errTLSPair         = errors.New("api.tls_cert and api.tls_key must be set together")
)

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes, validates and defaults a configuration.
func Parse(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no jobs,
// for one-off runs built from command-line flags.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = 60
	}
	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9090
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "/var/log/dircrawl"
	}
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30
	}
	if c.NFSTimeout <= 0 {
		c.NFSTimeout = 5
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "/var/lib/dircrawl/runs.db"
	}
	if c.LockDir == "" {
		c.LockDir = "/var/lib/dircrawl/locks"
	}
	if c.HistoryRetentionDays <= 0 {
		c.HistoryRetentionDays = 90
	}
	if c.API.TokenTTLHours <= 0 {
		c.API.TokenTTLHours = 24
	}
	if c.API.RateLimit <= 0 {
		c.API.RateLimit = 20
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = 40
	}
}

func (c *Config) validateAndDefault() error {
	if len(c.Jobs) == 0 {
		return errNoJobs
	}
	c.applyDefaults()

	if c.ResourceLimits.MaxCPUPercent < 0 || c.ResourceLimits.MaxCPUPercent > 100 {
		return errNegativeLimit
	}

	for _, port := range []int{c.Prometheus.Port, c.API.Port} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: %d", errInvalidPort, port)
		}
	}
	if (c.API.TLSCert == "") != (c.API.TLSKey == "") {
		return errTLSPair
	}

	for i, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("protected_paths: %w", err)
		}
		c.ProtectedPaths[i] = cp
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		if err := j.Validate(); err != nil {
			return err
		}
		if seen[j.Name] {
			return fmt.Errorf("%w: %s", errDuplicateName, j.Name)
		}
		seen[j.Name] = true
	}
	return nil
}

// Validate checks a job and fills in its defaults. Roots are cleaned in place.
func (j *Job) Validate() error {
	if j.Name == "" {
		return errNoName
	}
	root, err := cleanAbsolute(j.Root)
	if err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	j.Root = root

	if j.Mode == "" {
		j.Mode = ModeCrawl
	}
	switch j.Mode {
	case ModeCrawl, ModePurge:
	case ModeHunt:
		if len(j.DirectoryNames) == 0 {
			return fmt.Errorf("job %s: %w", j.Name, errNoNames)
		}
	default:
		return fmt.Errorf("job %s: %w: %q", j.Name, errInvalidMode, j.Mode)
	}

	if j.MinFileAgeDays < 0 {
		return fmt.Errorf("job %s: %w", j.Name, errNegativeAge)
	}
	if j.PreserveMatchedContents && !j.DeleteMatchedDirectories {
		return fmt.Errorf("job %s: %w", j.Name, errPreserveNoMatch)
	}
	if j.DeleteMatchedDirectories && j.Mode == ModeCrawl && j.DirectoryPattern == "" {
		return fmt.Errorf("job %s: %w", j.Name, errDeleteNoPattern)
	}
	if j.FileAction != "" && j.DeleteMatchedFiles {
		return fmt.Errorf("job %s: %w", j.Name, errFileConflict)
	}
	return nil
}

// MinFileAge is the age a file must reach before file rules apply to it.
func (j *Job) MinFileAge() time.Duration {
	return time.Duration(j.MinFileAgeDays) * 24 * time.Hour
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c *Config) PrometheusAddress() string {
	return fmt.Sprintf(":%d", c.Prometheus.Port)
}

func (c *Config) APIAddress() string {
	return fmt.Sprintf(":%d", c.API.Port)
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.API.TokenTTLHours) * time.Hour
}

func (c *Config) NFSTimeoutDuration() time.Duration {
	return time.Duration(c.NFSTimeout) * time.Second
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

// Job returns the configured job called name.
func (c *Config) Job(name string) (Job, bool) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}
