// Package config loads MyPM settings from defaults, TOML files, the
// environment and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIBaseURL             = "http://localhost:8000"
	DefaultRequestTimeoutSeconds  = 10
	DefaultLogLevel               = "info"
	DefaultRefreshIntervalSeconds = 30
	DefaultServerAddr             = ":8000"
	DefaultDir                    = ".mypm"
	DefaultDBPath                 = DefaultDir + "/mypm.db"
	DefaultSnapshotPath           = DefaultDir + "/snapshot.jsonl"
	DefaultNeo4jDatabase          = "neo4j"

	StoreSQLite = "sqlite"
	StoreNeo4j  = "neo4j"

	// EnvPrefix prefixes every environment override, e.g. MYPM_API_BASE_URL.
	EnvPrefix = "MYPM_"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	APIBaseURL             string `toml:"api_base_url"`
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`
	LogLevel               string `toml:"log_level"`
	LogFile                string `toml:"log_file"`
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"`

	Server ServerConfig `toml:"server"`
	Neo4j  Neo4jConfig  `toml:"neo4j"`
}

// ServerConfig configures `mypm serve`.
type ServerConfig struct {
	Addr string `toml:"addr"`
	// Store selects the backend store: sqlite or neo4j.
	Store        string `toml:"store"`
	DBPath       string `toml:"db_path"`
	SnapshotPath string `toml:"snapshot_path"`
}

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// Overrides are values given on the command line. Empty fields are ignored.
type Overrides struct {
	APIBaseURL string
	LogLevel   string
	LogFile    string
	ServerAddr string
	Store      string
	DBPath     string
}

func Default() *Config {
	return &Config{
		APIBaseURL:             DefaultAPIBaseURL,
		RequestTimeoutSeconds:  DefaultRequestTimeoutSeconds,
		LogLevel:               DefaultLogLevel,
		RefreshIntervalSeconds: DefaultRefreshIntervalSeconds,
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			Store:        StoreSQLite,
			DBPath:       DefaultDBPath,
			SnapshotPath: DefaultSnapshotPath,
		},
		Neo4j: Neo4jConfig{
			Database: DefaultNeo4jDatabase,
		},
	}
}

// Load builds the configuration in priority order:
//  1. Defaults
//  2. User config file (~/.config/mypm/config.toml)
//  3. Project config file (.mypm/config.toml), or path when it is not empty
//  4. Environment variables (MYPM_*)
//  5. Overrides
func Load(path string, overrides Overrides) (*Config, error) {
	cfg := Default()

	if userFile := findUserConfigFile(); userFile != "" {
		if err := loadFile(cfg, userFile); err != nil {
			return nil, fmt.Errorf("loading user config file %s: %w", userFile, err)
		}
	}

	projectFile := path
	if projectFile == "" {
		projectFile = findProjectConfigFile()
	}
	if projectFile != "" {
		if err := loadFile(cfg, projectFile); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", projectFile, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	applyOverrides(cfg, overrides)

	cfg.LogFile = expandPath(cfg.LogFile)
	cfg.Server.DBPath = expandPath(cfg.Server.DBPath)
	cfg.Server.SnapshotPath = expandPath(cfg.Server.SnapshotPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	strs := map[string]*string{
		"API_BASE_URL":   &cfg.APIBaseURL,
		"LOG_LEVEL":      &cfg.LogLevel,
		"LOG_FILE":       &cfg.LogFile,
		"SERVER_ADDR":    &cfg.Server.Addr,
		"STORE":          &cfg.Server.Store,
		"DB_PATH":        &cfg.Server.DBPath,
		"SNAPSHOT_PATH":  &cfg.Server.SnapshotPath,
		"NEO4J_URI":      &cfg.Neo4j.URI,
		"NEO4J_USERNAME": &cfg.Neo4j.Username,
		"NEO4J_PASSWORD": &cfg.Neo4j.Password,
		"NEO4J_DATABASE": &cfg.Neo4j.Database,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REQUEST_TIMEOUT_SECONDS":  &cfg.RequestTimeoutSeconds,
		"REFRESH_INTERVAL_SECONDS": &cfg.RefreshIntervalSeconds,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s must be an integer", ErrInvalidConfig, EnvPrefix, name)
		}
		*dst = i
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.APIBaseURL, o.APIBaseURL)
	set(&cfg.LogLevel, o.LogLevel)
	set(&cfg.LogFile, o.LogFile)
	set(&cfg.Server.Addr, o.ServerAddr)
	set(&cfg.Server.Store, o.Store)
	set(&cfg.Server.DBPath, o.DBPath)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api_base_url %q must be an http(s) URL", ErrInvalidConfig, c.APIBaseURL)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: request_timeout_seconds must be positive", ErrInvalidConfig)
	}
	if c.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("%w: refresh_interval_seconds must not be negative", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q must be debug, info, warn or error", ErrInvalidConfig, c.LogLevel)
	}
	switch c.Server.Store {
	case StoreSQLite:
	case StoreNeo4j:
		if c.Neo4j.URI == "" {
			return fmt.Errorf("%w: neo4j.uri is required when server.store is neo4j", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: server.store %q must be sqlite or neo4j", ErrInvalidConfig, c.Server.Store)
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RefreshInterval is zero when periodic refresh is disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}
