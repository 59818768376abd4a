// Package config handles migration configuration: defaults, an optional YAML
// file, a .env file and environment variables.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gristmigrate/internal/secret"
)

// Defaults for the Simplifions documents.
const (
	DefaultAPIURL    = "https://grist.numerique.gouv.fr/api"
	DefaultSourceDoc = "c5pt7QVcKWWe"
	DefaultTargetDoc = "ofSVjCSAnMb6"
	DefaultPlan      = "simplifions"
	DefaultFile      = "gristmigrate.yaml"
)

// Environment variables.
const (
	EnvAPIURL    = "GRIST_API_URL"
	EnvAPIKey    = "SECRET_GRIST_API_KEY"
	EnvSourceDoc = "SOURCE_GRIST_ID"
	EnvTargetDoc = "TARGET_GRIST_ID"
	EnvHistoryDB = "GRISTMIGRATE_HISTORY_DB"
	EnvRateLimit = "GRIST_RATE_LIMIT_RPS"
	EnvTimeout   = "GRIST_TIMEOUT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
	EnvSchedule  = "GRISTMIGRATE_SCHEDULE"
)

// Config holds everything a migration run needs.
type Config struct {
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key,omitempty"`
	SourceDoc string `yaml:"source_doc"`
	TargetDoc string `yaml:"target_doc"`

	Plan  string   `yaml:"plan"`
	Steps []string `yaml:"steps,omitempty"` // empty: every step

	HistoryDB string `yaml:"history_db,omitempty"` // SQLite run history; empty disables it

	RateLimitRPS   float64       `yaml:"rate_limit_rps,omitempty"` // 0: unlimited
	RateLimitBurst int           `yaml:"rate_limit_burst,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"` // per HTTP request; 0: none

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Schedule string `yaml:"schedule,omitempty"` // cron expression for `schedule`

	// Warnings collects non-fatal problems found while loading.
	Warnings []string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:         DefaultAPIURL,
		SourceDoc:      DefaultSourceDoc,
		TargetDoc:      DefaultTargetDoc,
		Plan:           DefaultPlan,
		RateLimitBurst: 1,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load builds a configuration from defaults, then the YAML file at path (if
// any), then the environment. A missing file is only an error when path was
// given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.MergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.MergeEnv()
	return cfg, nil
}

// MergeFile overlays the non-empty values of a YAML file.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if file.APIKey != "" {
		c.Warnings = append(c.Warnings, "api_key is set in "+path+"; prefer "+EnvAPIKey)
	}
	c.overlay(&file)
	return nil
}

func (c *Config) overlay(o *Config) {
	setString(&c.APIURL, o.APIURL)
	setString(&c.APIKey, o.APIKey)
	setString(&c.SourceDoc, o.SourceDoc)
	setString(&c.TargetDoc, o.TargetDoc)
	setString(&c.Plan, o.Plan)
	setString(&c.HistoryDB, o.HistoryDB)
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.LogFormat, o.LogFormat)
	setString(&c.Schedule, o.Schedule)
	if len(o.Steps) > 0 {
		c.Steps = o.Steps
	}
	if o.RateLimitRPS != 0 {
		c.RateLimitRPS = o.RateLimitRPS
	}
	if o.RateLimitBurst != 0 {
		c.RateLimitBurst = o.RateLimitBurst
	}
	if o.Timeout != 0 {
		c.Timeout = o.Timeout
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// MergeEnv overlays environment variables. Unparseable numbers are reported
// as warnings and ignored.
func (c *Config) MergeEnv() {
	setString(&c.APIURL, os.Getenv(EnvAPIURL))
	setString(&c.APIKey, os.Getenv(EnvAPIKey))
	setString(&c.SourceDoc, os.Getenv(EnvSourceDoc))
	setString(&c.TargetDoc, os.Getenv(EnvTargetDoc))
	setString(&c.HistoryDB, os.Getenv(EnvHistoryDB))
	setString(&c.LogLevel, os.Getenv(EnvLogLevel))
	setString(&c.LogFormat, os.Getenv(EnvLogFormat))
	setString(&c.Schedule, os.Getenv(EnvSchedule))

	if v := os.Getenv(EnvRateLimit); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimitRPS = f
		} else {
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a number", EnvRateLimit, v))
		}
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		} else {
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a duration", EnvTimeout, v))
		}
	}
}

// ResolveAPIKey falls back to the secret store when no key was configured.
func (c *Config) ResolveAPIKey(store secret.Store) error {
	if c.APIKey != "" || store == nil {
		return nil
	}
	v, err := store.Get(secret.APIKeyName)
	if err != nil {
		return fmt.Errorf("read api key: %w", err)
	}
	c.APIKey = strings.TrimSpace(string(v))
	return nil
}

// Validate checks the configuration can reach both documents.
func (c *Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("api url is required"))
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("api key is required (set %s)", EnvAPIKey))
	}
	if c.SourceDoc == "" {
		errs = append(errs, errors.New("source document id is required"))
	}
	if c.TargetDoc == "" {
		errs = append(errs, errors.New("target document id is required"))
	}
	if c.SourceDoc != "" && c.SourceDoc == c.TargetDoc {
		errs = append(errs, errors.New("source and target documents must differ"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Save writes the configuration as YAML, without the API key.
func (c *Config) Save(path string) error {
	out := *c
	out.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes matching surrounding double or single quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
