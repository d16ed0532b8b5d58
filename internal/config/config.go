// Package config loads crm-assist settings from an optional YAML file, an optional
// .env file and environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shpitdev/crm-assist/pkg/assist/gemini"
)

type Config struct {
	Gemini    Gemini  `yaml:"gemini"`
	Prompts   Prompts `yaml:"prompts"`
	Workspace string  `yaml:"workspace"`
	Server    Server  `yaml:"server"`
	Log       Log     `yaml:"log"`
	Triage    Triage  `yaml:"triage"`
	Intake    Intake  `yaml:"intake"`
}

type Gemini struct {
	// APIKey is only read from the environment.
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Prompts struct {
	Language string `yaml:"language"`
	Currency string `yaml:"currency"`
}

type Server struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Intake configures how accepted suggestions become CRM records.
type Intake struct {
	OwnerID string `yaml:"owner_id"`
}

type Triage struct {
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"max_retries"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	FailFast       bool          `yaml:"fail_fast"`
}

func Default() Config {
	return Config{
		Gemini:  Gemini{Model: gemini.DefaultModel},
		Prompts: Prompts{Language: "German", Currency: "EUR"},
		Server:  Server{Addr: ":8080", CORSOrigins: []string{"*"}},
		Log:     Log{Level: "info", Format: "json"},
		Triage:  Triage{Workers: 4, RequestTimeout: 60 * time.Second},
		Intake:  Intake{OwnerID: "cedric"},
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load returns Default() overlaid with the YAML file at path (if non-empty) and
// then with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Gemini.APIKey = firstEnv("GEMINI_API_KEY", "API_KEY")
	c.Gemini.Model = envString("GEMINI_MODEL", c.Gemini.Model)
	c.Gemini.BaseURL = envString("GEMINI_BASE_URL", c.Gemini.BaseURL)
	c.Workspace = envString("CRM_ASSIST_WORKSPACE", c.Workspace)
	c.Server.Addr = envString("CRM_ASSIST_ADDR", c.Server.Addr)
	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)
	c.Intake.OwnerID = envString("CRM_ASSIST_OWNER", c.Intake.OwnerID)

	var err error
	if c.Triage.Workers, err = envInt("TRIAGE_WORKERS", c.Triage.Workers); err != nil {
		return err
	}
	if c.Triage.MaxRetries, err = envInt("TRIAGE_MAX_RETRIES", c.Triage.MaxRetries); err != nil {
		return err
	}
	if c.Triage.RateLimitRPS, err = envFloat("TRIAGE_RATE_LIMIT_RPS", c.Triage.RateLimitRPS); err != nil {
		return err
	}
	if c.Triage.RequestTimeout, err = envDuration("TRIAGE_REQUEST_TIMEOUT", c.Triage.RequestTimeout); err != nil {
		return err
	}
	if c.Triage.FailFast, err = envBool("TRIAGE_FAIL_FAST", c.Triage.FailFast); err != nil {
		return err
	}
	return nil
}

// Validate rejects values no component can run with. A missing API key is not an
// error; completions report it at call time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Gemini.Model) == "" {
		return errors.New("GEMINI_MODEL must not be empty")
	}
	if c.Triage.Workers < 0 {
		return fmt.Errorf("invalid TRIAGE_WORKERS=%d: must be >= 0", c.Triage.Workers)
	}
	if c.Triage.MaxRetries < 0 {
		return fmt.Errorf("invalid TRIAGE_MAX_RETRIES=%d: must be >= 0", c.Triage.MaxRetries)
	}
	if c.Triage.RateLimitRPS < 0 {
		return fmt.Errorf("invalid TRIAGE_RATE_LIMIT_RPS=%g: must be >= 0", c.Triage.RateLimitRPS)
	}
	if c.Triage.RequestTimeout < 0 {
		return fmt.Errorf("invalid TRIAGE_REQUEST_TIMEOUT=%s: must be >= 0", c.Triage.RequestTimeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT=%q: want json or console", c.Log.Format)
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

func envString(varName string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
