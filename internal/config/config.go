// Package config handles loading and managing mediavault configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/mediavault/mediavault/internal/chatref"
	"github.com/mediavault/mediavault/internal/fileutil"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDIAVAULT_"

// Source kinds an index run can read from.
const (
	SourceArchive = "archive"
	SourceBot     = "bot"
)

// Config represents the mediavault configuration.
type Config struct {
	Data     DataConfig       `toml:"data"`
	Telegram TelegramConfig   `toml:"telegram"`
	Search   SearchConfig     `toml:"search"`
	Ingest   IngestConfig     `toml:"ingest"`
	Server   ServerConfig     `toml:"server"`
	Sources  []SourceSchedule `toml:"sources"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// TelegramConfig holds bot and message source settings.
type TelegramConfig struct {
	BotToken    string  `toml:"bot_token"`
	DumpChatID  int64   `toml:"dump_chat_id"` // Chat receiving forwarded copies while indexing
	ArchiveDir  string  `toml:"archive_dir"`  // JSONL chat exports; defaults to <data_dir>/archive
	APIEndpoint string  `toml:"api_endpoint"` // Bot API endpoint format, empty for api.telegram.org
	Admins      []int64 `toml:"admins"`       // User ids allowed to drive the bot; empty allows everyone
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	MaxResults       int  `toml:"max_results"`        // Page size for scopes without page_unrestricted
	UseCaptionFilter bool `toml:"use_caption_filter"` // Default caption matching for new scopes
	UnboundedCap     int  `toml:"unbounded_cap"`      // Result cap for unpaged searches
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	BatchSize     int `toml:"batch_size"`
	ProgressEvery int `toml:"progress_every"`
	FetchSize     int `toml:"fetch_size"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort     int      `toml:"api_port"`     // HTTP server port (default: 8080)
	BindAddr    string   `toml:"bind_addr"`    // Listen address (default: 127.0.0.1)
	APIKey      string   `toml:"api_key"`      // API authentication key
	CORSOrigins []string `toml:"cors_origins"` // Allowed browser origins
	RateLimit   float64  `toml:"rate_limit"`   // Requests per second per client, 0 disables
	RateBurst   int      `toml:"rate_burst"`
}

// SourceSchedule defines a recurring index run for one chat.
type SourceSchedule struct {
	Chat          string `toml:"chat"`            // Chat id or @username
	LastMessageID int    `toml:"last_message_id"` // Walk up to this id; 0 means the archive's last message
	Source        string `toml:"source"`          // "archive" (default) or "bot"
	Schedule      string `toml:"schedule"`        // Cron expression (e.g., "0 2 * * *" for 2am daily)
	Enabled       bool   `toml:"enabled"`
}

// SourceKind returns the configured source, defaulting to the archive.
func (s SourceSchedule) SourceKind() string {
	if s.Source == "" {
		return SourceArchive
	}
	return s.Source
}

// envOverrides lists the settings that may come from the environment.
type envOverrides struct {
	DataDir    string  `env:"DATA_DIR"`
	BotToken   string  `env:"BOT_TOKEN"`
	DumpChatID int64   `env:"DUMP_CHAT_ID"`
	ArchiveDir string  `env:"ARCHIVE_DIR"`
	Admins     []int64 `env:"ADMINS" envSeparator:","`
	APIKey     string  `env:"API_KEY"`
	APIPort    int     `env:"API_PORT"`
	BindAddr   string  `env:"BIND_ADDR"`
}

// DefaultHome returns the default mediavault home directory.
// Respects MEDIAVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv(EnvPrefix + "HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mediavault"
	}
	return filepath.Join(home, ".mediavault")
}

// NewDefaultConfig returns a configuration with default values.
func NewDefaultConfig() *Config {
	return newDefaultConfig(DefaultHome())
}

func newDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Search: SearchConfig{
			MaxResults:   10,
			UnboundedCap: 1000,
		},
		Ingest: IngestConfig{
			BatchSize:     50,
			ProgressEvery: 100,
			FetchSize:     100,
		},
		Server: ServerConfig{
			APIPort:   8080,
			BindAddr:  "127.0.0.1",
			RateLimit: 10,
			RateBurst: 20,
		},
		Sources: []SourceSchedule{},
	}
}

// Load reads the configuration and applies environment overrides.
//
// If configPath is set, that file must exist and relative paths inside it
// resolve against its directory, which also becomes the home directory.
// Otherwise homeDir (or DefaultHome) is used and its config.toml is
// optional.
func Load(configPath, homeDir string) (*Config, error) {
	explicit := configPath != ""
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)

	if explicit {
		configPath = expandPath(configPath)
		homeDir = filepath.Dir(configPath)
	}
	if abs, err := filepath.Abs(homeDir); err == nil {
		homeDir = abs
	}
	if explicit {
		configPath = filepath.Join(homeDir, filepath.Base(configPath))
	} else {
		configPath = filepath.Join(homeDir, "config.toml")
	}

	cfg := newDefaultConfig(homeDir)
	cfg.configPath = configPath

	if _, err := os.Stat(configPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, decodeError(err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Data.DataDir = resolvePath(homeDir, cfg.Data.DataDir)
	cfg.Telegram.ArchiveDir = resolvePath(homeDir, cfg.Telegram.ArchiveDir)

	for i := range cfg.Sources {
		if key := chatref.Canonical(cfg.Sources[i].Chat); key != "" {
			cfg.Sources[i].Chat = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	o := envOverrides{
		DataDir:    c.Data.DataDir,
		BotToken:   c.Telegram.BotToken,
		DumpChatID: c.Telegram.DumpChatID,
		ArchiveDir: c.Telegram.ArchiveDir,
		Admins:     c.Telegram.Admins,
		APIKey:     c.Server.APIKey,
		APIPort:    c.Server.APIPort,
		BindAddr:   c.Server.BindAddr,
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	c.Data.DataDir = o.DataDir
	c.Telegram.BotToken = o.BotToken
	c.Telegram.DumpChatID = o.DumpChatID
	c.Telegram.ArchiveDir = o.ArchiveDir
	c.Telegram.Admins = o.Admins
	c.Server.APIKey = o.APIKey
	c.Server.APIPort = o.APIPort
	c.Server.BindAddr = o.BindAddr
	return nil
}

// decodeError adds a hint for the most common TOML mistake: Windows paths
// in basic strings.
func decodeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return fmt.Errorf("decode config: %w\n  hint: use forward slashes or single quotes for paths, e.g. 'C:\\data'", err)
	}
	return fmt.Errorf("decode config: %w", err)
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.UnboundedCap <= 0 {
		return fmt.Errorf("search.unbounded_cap must be positive, got %d", c.Search.UnboundedCap)
	}
	if c.Ingest.BatchSize <= 0 || c.Ingest.ProgressEvery <= 0 || c.Ingest.FetchSize <= 0 {
		return errors.New("ingest.batch_size, ingest.progress_every and ingest.fetch_size must be positive")
	}
	for i, s := range c.Sources {
		if chatref.Canonical(s.Chat) == "" {
			return fmt.Errorf("sources[%d]: chat is required", i)
		}
		if s.LastMessageID < 0 {
			return fmt.Errorf("sources[%d]: last_message_id must not be negative", i)
		}
		if k := s.SourceKind(); k != SourceArchive && k != SourceBot {
			return fmt.Errorf("sources[%d]: unknown source %q", i, s.Source)
		}
	}
	return nil
}

// ConfigFilePath returns the path of the config file that was (or would
// have been) loaded.
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the home and data directories if they are missing.
func (c *Config) EnsureHomeDir() error {
	for _, dir := range []string{c.HomeDir, c.Data.DataDir} {
		if dir == "" {
			continue
		}
		if err := fileutil.MkdirPrivate(dir); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "mediavault.db")
}

// ArchiveDir returns the directory holding JSONL chat exports.
func (c *Config) ArchiveDir() string {
	if c.Telegram.ArchiveDir != "" {
		return c.Telegram.ArchiveDir
	}
	return filepath.Join(c.Data.DataDir, "archive")
}

// ListenAddr returns the API server's listen address.
func (c *Config) ListenAddr() string {
	bind := c.Server.BindAddr
	if bind == "" {
		bind = "127.0.0.1"
	}
	return net.JoinHostPort(bind, strconv.Itoa(c.Server.APIPort))
}

// IsLoopback reports whether the server only listens on a loopback address.
func (s ServerConfig) IsLoopback() bool {
	switch s.BindAddr {
	case "", "localhost":
		return true
	}
	ip := net.ParseIP(s.BindAddr)
	return ip != nil && ip.IsLoopback()
}

// ValidateSecure refuses to expose the API beyond loopback without a key.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey == "" && !s.IsLoopback() {
		return fmt.Errorf("server.bind_addr %q is not a loopback address; set server.api_key to expose the API", s.BindAddr)
	}
	return nil
}

// ScheduledSources returns sources with scheduling enabled.
func (c *Config) ScheduledSources() []SourceSchedule {
	var scheduled []SourceSchedule
	for _, s := range c.Sources {
		if s.Enabled && s.Schedule != "" {
			scheduled = append(scheduled, s)
		}
	}
	return scheduled
}

// GetSource returns the configured source for chat, or nil. Any spelling
// of the chat matches.
func (c *Config) GetSource(chat string) *SourceSchedule {
	for i := range c.Sources {
		if chatref.Equal(c.Sources[i].Chat, chat) {
			s := c.Sources[i]
			return &s
		}
	}
	return nil
}

// resolvePath expands ~ and makes relative paths relative to base.
func resolvePath(base, path string) string {
	if path == "" {
		return path
	}
	path = expandPath(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	return path
}

// expandPath expands a leading ~ or ~/ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		// ~user is not supported
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
