package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for MangaBot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Site     SiteConfig     `json:"site" yaml:"site"`
	Browser  BrowserConfig  `json:"browser" yaml:"browser"`
	Bot      BotConfig      `json:"bot" yaml:"bot"`
	Delivery DeliveryConfig `json:"delivery" yaml:"delivery"`
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel" yaml:"logLevel"`
	LogFormat             string `json:"logFormat" yaml:"logFormat,omitempty"` // "text" | "json"
	LogFile               string `json:"logFile" yaml:"logFile,omitempty"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages"`
}

// SiteConfig describes the manga listing site the extractor scrapes.
type SiteConfig struct {
	BaseURL        string          `json:"baseUrl" yaml:"baseUrl"`
	UserAgent      string          `json:"userAgent" yaml:"userAgent"`
	Renderer       string          `json:"renderer" yaml:"renderer"`             // "http" | "browser"
	ListingTimeout int             `json:"listingTimeout" yaml:"listingTimeout"` // seconds
	ChapterTimeout int             `json:"chapterTimeout" yaml:"chapterTimeout"` // seconds
	Selectors      SelectorsConfig `json:"selectors" yaml:"selectors"`
}

// SelectorsConfig overrides the CSS selectors; empty fields keep the built-in ones.
type SelectorsConfig struct {
	Title        string `json:"title" yaml:"title,omitempty"`
	Cover        string `json:"cover" yaml:"cover,omitempty"`
	ChapterLinks string `json:"chapterLinks" yaml:"chapterLinks,omitempty"`
	Images       string `json:"images" yaml:"images,omitempty"`
}

// BrowserConfig is used when site.renderer is "browser".
type BrowserConfig struct {
	ProfileDir string `json:"profileDir" yaml:"profileDir,omitempty"`
	Headless   bool   `json:"headless" yaml:"headless"`
}

type BotConfig struct {
	ResetKeyword string `json:"resetKeyword" yaml:"resetKeyword"`
	Locale       string `json:"locale" yaml:"locale"`
}

type DeliveryConfig struct {
	ImageDelayMs int `json:"imageDelayMs" yaml:"imageDelayMs"`
}

type ChannelsConfig struct {
	Messenger MessengerConfig `json:"messenger" yaml:"messenger"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
}

// MessengerConfig configures the Facebook Messenger page integration.
type MessengerConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	PageAccessToken string `json:"pageAccessToken" yaml:"pageAccessToken,omitempty"`
	VerifyToken     string `json:"verifyToken" yaml:"verifyToken,omitempty"`
	AppSecret       string `json:"appSecret" yaml:"appSecret,omitempty"` // enables X-Hub-Signature-256 checks
	APIVersion      string `json:"apiVersion" yaml:"apiVersion"`
	GraphBase       string `json:"graphBase" yaml:"graphBase"`
	WebhookPath     string `json:"webhookPath" yaml:"webhookPath"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	Token     string         `json:"token" yaml:"token"`
	AllowFrom FlexStringList `json:"allowFrom" yaml:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// ServerConfig is the HTTP listener hosting the webhook, /metrics and /healthz.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

func (c SiteConfig) ListingTimeoutDuration() time.Duration {
	return time.Duration(c.ListingTimeout) * time.Second
}

func (c SiteConfig) ChapterTimeoutDuration() time.Duration {
	return time.Duration(c.ChapterTimeout) * time.Second
}

func (c DeliveryConfig) ImageDelay() time.Duration {
	return time.Duration(c.ImageDelayMs) * time.Millisecond
}

// DefaultConfigDir returns the default config directory (~/.mangabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mangabot"
	}
	return filepath.Join(home, ".mangabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped and existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file may hold a page access token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	if u, err := url.Parse(cfg.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "site.baseUrl must be an absolute URL")
	}
	switch cfg.Site.Renderer {
	case "http", "browser":
	default:
		errs = append(errs, "site.renderer must be one of: http, browser")
	}
	if cfg.Site.ListingTimeout < 1 {
		errs = append(errs, "site.listingTimeout must be >= 1")
	}
	if cfg.Site.ChapterTimeout < 1 {
		errs = append(errs, "site.chapterTimeout must be >= 1")
	}

	if strings.TrimSpace(cfg.Bot.ResetKeyword) == "" {
		errs = append(errs, "bot.resetKeyword must not be empty")
	} else if _, err := strconv.Atoi(strings.TrimSpace(cfg.Bot.ResetKeyword)); err == nil {
		errs = append(errs, "bot.resetKeyword must not be a number")
	}
	switch cfg.Bot.Locale {
	case "en", "ar":
	default:
		errs = append(errs, "bot.locale must be one of: en, ar")
	}

	if cfg.Delivery.ImageDelayMs < 0 {
		errs = append(errs, "delivery.imageDelayMs must be >= 0")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	m := cfg.Channels.Messenger
	if m.Enabled {
		if m.PageAccessToken == "" {
			errs = append(errs, "channels.messenger.pageAccessToken is required when messenger is enabled")
		}
		if m.VerifyToken == "" {
			errs = append(errs, "channels.messenger.verifyToken is required when messenger is enabled")
		}
	}
	if !strings.HasPrefix(m.WebhookPath, "/") {
		errs = append(errs, "channels.messenger.webhookPath must start with /")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required when history is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
