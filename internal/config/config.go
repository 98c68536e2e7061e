package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	dirName        = ".citywatch"
	dbFileName     = "citywatch.db"
	configFileName = "config.yaml"
)

// Environment variables, highest precedence.
const (
	EnvPath      = "CITYWATCH_PATH"
	EnvURL       = "CITYWATCH_URL"
	EnvStreamURL = "CITYWATCH_STREAM_URL"
	EnvToken     = "CITYWATCH_TOKEN"
	EnvTokenFile = "CITYWATCH_TOKEN_FILE"
)

// Defaults.
const (
	DefaultBaseURL        = "http://localhost:8000/api"
	DefaultTimeout        = 15 * time.Second
	DefaultResyncInterval = 5 * time.Minute
	DefaultRate           = 5.0
	DefaultHeatRadius     = 3.0
	DefaultHeatBlur       = 0.5
)

// Config holds resolved configuration.
type Config struct {
	Dir        string // resolved .citywatch directory path
	DBPath     string // full path to the cache database
	ConfigPath string // full path to config.yaml
	EnvVarSet  bool   // whether CITYWATCH_PATH was used

	BaseURL     string
	StreamURL   string
	Token       string
	TokenSource string
	ReporterID  string

	Timeout           time.Duration
	ResyncInterval    time.Duration // zero disables periodic resync
	RequestsPerSecond float64
	HeatRadius        float64
	HeatBlur          float64
}

// File is the on-disk config.yaml shape. Durations are Go duration strings.
type File struct {
	BaseURL        string  `yaml:"base_url,omitempty"`
	StreamURL      string  `yaml:"stream_url,omitempty"`
	Token          string  `yaml:"token,omitempty"`
	TokenFile      string  `yaml:"token_file,omitempty"`
	ReporterID     string  `yaml:"reporter_id,omitempty"`
	Timeout        string  `yaml:"timeout,omitempty"`
	ResyncInterval string  `yaml:"resync_interval,omitempty"`
	RequestRate    float64 `yaml:"request_rate,omitempty"`
	Heatmap        struct {
		Radius float64  `yaml:"radius,omitempty"`
		Blur   *float64 `yaml:"blur,omitempty"`
	} `yaml:"heatmap,omitempty"`
}

// Resolve builds the configuration from defaults, <dir>/config.yaml, a .env
// file in the working directory and the environment, in increasing order of
// precedence.
func Resolve() (*Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var dir string
	var envVarSet bool
	if envPath := os.Getenv(EnvPath); envPath != "" {
		dir = envPath
		envVarSet = true
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(cwd, dirName)
	}

	cfg := &Config{
		Dir:               dir,
		DBPath:            filepath.Join(dir, dbFileName),
		ConfigPath:        filepath.Join(dir, configFileName),
		EnvVarSet:         envVarSet,
		BaseURL:           DefaultBaseURL,
		Timeout:           DefaultTimeout,
		ResyncInterval:    DefaultResyncInterval,
		RequestsPerSecond: DefaultRate,
		HeatRadius:        DefaultHeatRadius,
		HeatBlur:          DefaultHeatBlur,
	}

	f, err := ReadFile(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.apply(f); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.ConfigPath, err)
	}

	if v := os.Getenv(EnvURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvStreamURL); v != "" {
		cfg.StreamURL = v
	}
	if v := os.Getenv(EnvTokenFile); v != "" {
		tok, err := readToken(v)
		if err != nil {
			return nil, err
		}
		cfg.Token, cfg.TokenSource = tok, EnvTokenFile
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token, cfg.TokenSource = v, EnvToken
	}

	return cfg, nil
}

func (c *Config) apply(f *File) error {
	if f == nil {
		return nil
	}
	if f.BaseURL != "" {
		c.BaseURL = f.BaseURL
	}
	if f.StreamURL != "" {
		c.StreamURL = f.StreamURL
	}
	if f.TokenFile != "" {
		path := f.TokenFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.Dir, path)
		}
		tok, err := readToken(path)
		if err != nil {
			return err
		}
		c.Token, c.TokenSource = tok, "token_file"
	}
	if f.Token != "" {
		c.Token, c.TokenSource = f.Token, "config"
	}
	if f.ReporterID != "" {
		c.ReporterID = f.ReporterID
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if f.ResyncInterval != "" {
		d, err := time.ParseDuration(f.ResyncInterval)
		if err != nil {
			return fmt.Errorf("resync_interval: %w", err)
		}
		c.ResyncInterval = d
	}
	if f.RequestRate != 0 {
		c.RequestsPerSecond = f.RequestRate
	}
	if f.Heatmap.Radius != 0 {
		c.HeatRadius = f.Heatmap.Radius
	}
	if f.Heatmap.Blur != nil {
		c.HeatBlur = *f.Heatmap.Blur
	}
	return nil
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadFile parses a config.yaml. A missing file yields nil and no error.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// WriteFile writes f as YAML with owner-only permissions, since it may hold a
// token.
func WriteFile(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate rejects values no command can work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL %q must be an absolute http(s) URL", c.BaseURL)
	}
	if c.StreamURL != "" {
		s, err := url.Parse(c.StreamURL)
		if err != nil || (s.Scheme != "ws" && s.Scheme != "wss") || s.Host == "" {
			return fmt.Errorf("stream URL %q must be an absolute ws(s) URL", c.StreamURL)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.ResyncInterval < 0 {
		return fmt.Errorf("resync interval must not be negative, got %s", c.ResyncInterval)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("request rate must be positive, got %v", c.RequestsPerSecond)
	}
	if c.HeatRadius <= 0 {
		return fmt.Errorf("heatmap radius must be positive, got %v", c.HeatRadius)
	}
	if c.HeatBlur < 0 || c.HeatBlur > 1 {
		return fmt.Errorf("heatmap blur must be within [0, 1], got %v", c.HeatBlur)
	}
	return nil
}

// Exists checks if the data directory and cache database both exist.
// It returns an error for non-existence failures (e.g. permission errors).
func (c *Config) Exists() (bool, error) {
	for _, p := range []string{c.Dir, c.DBPath} {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

// MaskedToken returns the token with all but the last four characters hidden.
func (c *Config) MaskedToken() string {
	if c.Token == "" {
		return ""
	}
	if len(c.Token) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + c.Token[len(c.Token)-4:]
}
