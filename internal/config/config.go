package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGraph  = "graph"
	BackendSheets = "sheets"
)

type Config struct {
	Backend          string
	ClientID         string
	Tenant           string
	CredentialsPath  string
	OAuthRedirectURL string
	DataDir          string
	ManifestPath     string
	DocumentName     string
	TemplatePath     string
	GraphBaseURL     string
	RequestTimeout   time.Duration
	Retries          int
	RetryBackoff     time.Duration
	FailFast         bool
	LogLevel         string
	LogFormat        string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to read .env file: %w", err)
	}

	cfg := &Config{
		Backend:          os.Getenv("SHOPBOOK_BACKEND"),
		ClientID:         os.Getenv("SHOPBOOK_CLIENT_ID"),
		Tenant:           os.Getenv("SHOPBOOK_TENANT"),
		CredentialsPath:  os.Getenv("SHOPBOOK_CREDENTIALS_PATH"),
		OAuthRedirectURL: os.Getenv("SHOPBOOK_OAUTH_REDIRECT_URL"),
		DataDir:          os.Getenv("SHOPBOOK_DATA_DIR"),
		ManifestPath:     os.Getenv("SHOPBOOK_MANIFEST"),
		DocumentName:     os.Getenv("SHOPBOOK_DOCUMENT"),
		TemplatePath:     os.Getenv("SHOPBOOK_TEMPLATE_PATH"),
		GraphBaseURL:     os.Getenv("SHOPBOOK_GRAPH_BASE_URL"),
		LogLevel:         os.Getenv("SHOPBOOK_LOG_LEVEL"),
		LogFormat:        os.Getenv("SHOPBOOK_LOG_FORMAT"),
	}

	// Set defaults if not provided
	if cfg.Backend == "" {
		cfg.Backend = BackendGraph
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "common"
	}
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = ".local/credentials.json"
	}
	if cfg.OAuthRedirectURL == "" {
		cfg.OAuthRedirectURL = "http://localhost:5500/callback"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = ".local"
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	var errs []string
	var err error
	if cfg.RequestTimeout, err = durationEnv("SHOPBOOK_REQUEST_TIMEOUT", 20*time.Second); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.RetryBackoff, err = durationEnv("SHOPBOOK_RETRY_BACKOFF", 500*time.Millisecond); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.Retries, err = intEnv("SHOPBOOK_RETRIES", 0); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.FailFast, err = boolEnv("SHOPBOOK_FAIL_FAST", false); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config load:\n  - %s", strings.Join(errs, "\n  - "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend {
	case BackendGraph:
		if c.ClientID == "" {
			errs = append(errs, "SHOPBOOK_CLIENT_ID is required for the graph backend. Register an app in Entra ID and set it in .env")
		}
	case BackendSheets:
		if c.TemplatePath != "" {
			errs = append(errs, "SHOPBOOK_TEMPLATE_PATH is not supported by the sheets backend; workbook tables do not survive the import")
		}
	default:
		errs = append(errs, fmt.Sprintf("SHOPBOOK_BACKEND (%q) must be one of: graph, sheets", c.Backend))
	}

	if !strings.HasPrefix(c.OAuthRedirectURL, "http://localhost:") && !strings.HasPrefix(c.OAuthRedirectURL, "http://127.0.0.1:") {
		errs = append(errs, fmt.Sprintf("SHOPBOOK_OAUTH_REDIRECT_URL (%q) must be a loopback http URL", c.OAuthRedirectURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, "SHOPBOOK_REQUEST_TIMEOUT must be positive")
	}
	if c.Retries < 0 {
		errs = append(errs, "SHOPBOOK_RETRIES must be non-negative")
	}
	if c.Retries > 0 && c.RetryBackoff <= 0 {
		errs = append(errs, "SHOPBOOK_RETRY_BACKOFF must be positive when retries are enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("SHOPBOOK_LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.LogLevel))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("SHOPBOOK_LOG_FORMAT (%q) must be one of: text, json", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s=%q: %v", name, v, err)
	}
	return d, nil
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s=%q: %v", name, v, err)
	}
	return i, nil
}

func boolEnv(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s=%q: %v", name, v, err)
	}
	return b, nil
}
