package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mirror backends.
const (
	MirrorFile      = "file"
	MirrorSurrealDB = "surrealdb"
)

// Config holds all configuration values.
type Config struct {
	// Service
	ServerURL     string
	ClientTimeout time.Duration

	// Local state
	StateDir    string
	Mirror      string
	PromptsFile string

	// Job synchronization
	PollInterval time.Duration
	StaleAfter   time.Duration

	// SurrealDB mirror backend
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Chat notifications
	SlackToken     string
	SlackChannel   string
	DiscordToken   string
	DiscordChannel string

	// Transcription defaults
	ModelName  string
	Language   string
	MaxWorkers int

	// Development server
	DevServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// ConfigFile is the YAML file that was read, empty if none.
	ConfigFile string

	problems []string
}

// fileConfig mirrors the optional YAML config file. Durations are Go
// duration strings ("1s", "10m").
type fileConfig struct {
	ServerURL     string `yaml:"server_url"`
	ClientTimeout string `yaml:"client_timeout"`
	StateDir      string `yaml:"state_dir"`
	Mirror        string `yaml:"mirror"`
	PromptsFile   string `yaml:"prompts_file"`
	PollInterval  string `yaml:"poll_interval"`
	StaleAfter    string `yaml:"stale_after"`
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
	DevServerAddr string `yaml:"devserver_addr"`

	SurrealDB struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
		AuthLevel string `yaml:"auth_level"`
	} `yaml:"surrealdb"`

	Slack struct {
		Token   string `yaml:"token"`
		Channel string `yaml:"channel"`
	} `yaml:"slack"`

	Discord struct {
		Token   string `yaml:"token"`
		Channel string `yaml:"channel"`
	} `yaml:"discord"`

	Transcription struct {
		ModelName  string `yaml:"model_name"`
		Language   string `yaml:"language"`
		MaxWorkers int    `yaml:"max_workers"`
	} `yaml:"transcription"`
}

// Load reads configuration from environment variables, a .env file in the
// working directory and the YAML config file named by MINUTES_CONFIG (default
// $XDG_CONFIG_HOME/minutes/config.yaml). Environment wins over .env, which
// wins over the YAML file, which wins over defaults. Missing files are fine.
func Load() (Config, error) {
	return LoadFiles(".env", os.Getenv("MINUTES_CONFIG"))
}

// LoadFiles is Load with explicit file locations. An empty configFile uses
// the default location.
func LoadFiles(envFile, configFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	explicit := configFile != ""
	if configFile == "" {
		configFile = filepath.Join(defaultConfigDir(), "config.yaml")
	}

	var fc fileConfig
	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", configFile, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		configFile = ""
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
	}

	cfg := fromSources(fc)
	cfg.ConfigFile = configFile
	return cfg, nil
}

func fromSources(fc fileConfig) Config {
	stateDir := getEnv("MINUTES_STATE_DIR", or(fc.StateDir, defaultStateDir()))

	c := Config{
		ServerURL: strings.TrimRight(getEnv("MINUTES_SERVER_URL", or(fc.ServerURL, "http://localhost:8000")), "/"),

		StateDir:    stateDir,
		Mirror:      strings.ToLower(getEnv("MINUTES_MIRROR", or(fc.Mirror, MirrorFile))),
		PromptsFile: getEnv("MINUTES_PROMPTS_FILE", or(fc.PromptsFile, filepath.Join(defaultConfigDir(), "prompts.yaml"))),

		SurrealDBURL:       getEnv("SURREALDB_URL", or(fc.SurrealDB.URL, "ws://localhost:8001/rpc")),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", or(fc.SurrealDB.Namespace, "minutes")),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", or(fc.SurrealDB.Database, "mirror")),
		SurrealDBUser:      getEnv("SURREALDB_USER", or(fc.SurrealDB.User, "root")),
		SurrealDBPass:      getEnv("SURREALDB_PASS", or(fc.SurrealDB.Pass, "root")),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", or(fc.SurrealDB.AuthLevel, "root")),

		SlackToken:     getEnv("MINUTES_SLACK_TOKEN", fc.Slack.Token),
		SlackChannel:   getEnv("MINUTES_SLACK_CHANNEL", fc.Slack.Channel),
		DiscordToken:   getEnv("MINUTES_DISCORD_TOKEN", fc.Discord.Token),
		DiscordChannel: getEnv("MINUTES_DISCORD_CHANNEL", fc.Discord.Channel),

		ModelName: getEnv("MINUTES_MODEL_NAME", or(fc.Transcription.ModelName, "Whisper Malaysia")),
		Language:  getEnv("MINUTES_LANGUAGE", or(fc.Transcription.Language, "auto")),

		DevServerAddr: getEnv("MINUTES_DEVSERVER_ADDR", or(fc.DevServerAddr, ":8000")),

		LogFile:  getEnv("MINUTES_LOG_FILE", or(fc.LogFile, "/tmp/minutes.log")),
		LogLevel: parseLogLevel(getEnv("MINUTES_LOG_LEVEL", or(fc.LogLevel, "INFO"))),
	}

	c.ClientTimeout = c.duration("MINUTES_CLIENT_TIMEOUT", fc.ClientTimeout, 10*time.Minute)
	c.PollInterval = c.duration("MINUTES_POLL_INTERVAL", fc.PollInterval, time.Second)
	c.StaleAfter = c.duration("MINUTES_STALE_AFTER", fc.StaleAfter, time.Hour)

	maxWorkers := 6
	if fc.Transcription.MaxWorkers != 0 {
		maxWorkers = fc.Transcription.MaxWorkers
	}
	c.MaxWorkers = c.integer("MINUTES_MAX_WORKERS", maxWorkers)
	return c
}

// MirrorDir is where the file mirror keeps its collections.
func (c Config) MirrorDir() string {
	return filepath.Join(c.StateDir, "mirror")
}

// BlobDir is where downloaded report documents are cached.
func (c Config) BlobDir() string {
	return filepath.Join(c.StateDir, "reports")
}

// SessionFile holds the bearer token between invocations.
func (c Config) SessionFile() string {
	return filepath.Join(c.StateDir, "session.json")
}

// AudioFile holds the local audio library index.
func (c Config) AudioFile() string {
	return filepath.Join(c.StateDir, "audio.json")
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	errs := append([]string(nil), c.problems...)

	if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("server url %q must be an http(s) URL", c.ServerURL))
	}
	if c.StateDir == "" {
		errs = append(errs, "state dir is required")
	}
	switch c.Mirror {
	case MirrorFile:
	case MirrorSurrealDB:
		if c.SurrealDBURL == "" {
			errs = append(errs, "surrealdb url is required for the surrealdb mirror")
		}
	default:
		errs = append(errs, fmt.Sprintf("mirror %q must be %q or %q", c.Mirror, MirrorFile, MirrorSurrealDB))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "poll interval must be positive")
	}
	if c.StaleAfter <= 0 {
		errs = append(errs, "stale-after threshold must be positive")
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, "max workers must be at least 1")
	}
	if (c.SlackToken == "") != (c.SlackChannel == "") {
		errs = append(errs, "slack token and channel must be set together")
	}
	if (c.DiscordToken == "") != (c.DiscordChannel == "") {
		errs = append(errs, "discord token and channel must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) duration(key, fileVal string, def time.Duration) time.Duration {
	raw := getEnv(key, fileVal)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func (c *Config) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: invalid integer %q", key, raw))
		return def
	}
	return n
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "minutes")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "minutes")
	}
	return filepath.Join(os.TempDir(), "minutes")
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "minutes")
	}
	return filepath.Join(os.TempDir(), "minutes")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func or(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
