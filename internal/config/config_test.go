package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxConcurrentMessages(t *testing.T) {
	cfg := Defaults()
	cfg.General.MaxConcurrentMessages = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=0")
	}

	cfg.General.MaxConcurrentMessages = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentMessages=1 should be valid: %v", err)
	}

	cfg.General.MaxConcurrentMessages = 101
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=101")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_SiteBaseURL(t *testing.T) {
	for _, bad := range []string{"", "lekmanga.net", "/manga"} {
		cfg := Defaults()
		cfg.Site.BaseURL = bad
		if err := Validate(cfg); err == nil {
			t.Fatalf("expected error for baseUrl %q", bad)
		}
	}
}

func TestValidate_Renderer(t *testing.T) {
	for _, r := range []string{"http", "browser"} {
		cfg := Defaults()
		cfg.Site.Renderer = r
		if err := Validate(cfg); err != nil {
			t.Fatalf("renderer %q should be valid: %v", r, err)
		}
	}
	cfg := Defaults()
	cfg.Site.Renderer = "curl"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown renderer")
	}
}

func TestValidate_Timeouts(t *testing.T) {
	cfg := Defaults()
	cfg.Site.ListingTimeout = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for listingTimeout=0")
	}

	cfg = Defaults()
	cfg.Site.ChapterTimeout = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for chapterTimeout=0")
	}
}

func TestValidate_ResetKeyword(t *testing.T) {
	cfg := Defaults()
	cfg.Bot.ResetKeyword = "  "
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for blank reset keyword")
	}

	cfg.Bot.ResetKeyword = "7"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for numeric reset keyword")
	}
}

func TestValidate_Locale(t *testing.T) {
	cfg := Defaults()
	cfg.Bot.Locale = "fr"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown locale")
	}
}

func TestValidate_MessengerRequiresTokens(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Messenger.Enabled = true
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for enabled messenger without tokens")
	}
	if !strings.Contains(err.Error(), "pageAccessToken") || !strings.Contains(err.Error(), "verifyToken") {
		t.Fatalf("expected both token errors, got: %v", err)
	}

	cfg.Channels.Messenger.PageAccessToken = "page-token"
	cfg.Channels.Messenger.VerifyToken = "verify"
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_TelegramRequiresToken(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled telegram without token")
	}
}

func TestValidate_NegativeImageDelay(t *testing.T) {
	cfg := Defaults()
	cfg.Delivery.ImageDelayMs = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative image delay")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Site.BaseURL = "https://manga.example"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Site.BaseURL != "https://manga.example" {
		t.Fatalf("expected 'https://manga.example', got %q", loaded.Site.BaseURL)
	}
}

func TestLoadSave_YAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := Defaults()
	original.Bot.Locale = "ar"
	original.Delivery.ImageDelayMs = 750

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "imageDelayMs: 750") {
		t.Fatalf("expected YAML output, got:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Bot.Locale != "ar" || loaded.Delivery.ImageDelay() != 750*time.Millisecond {
		t.Fatalf("unexpected loaded values: %+v %+v", loaded.Bot, loaded.Delivery)
	}
}

func TestLoad_YAMLPartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := "site:\n  baseUrl: https://other.example\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Site.BaseURL != "https://other.example" {
		t.Fatalf("expected overridden baseUrl, got %q", cfg.Site.BaseURL)
	}
	if cfg.Site.ChapterTimeout != 15 || cfg.Bot.ResetKeyword != "list" {
		t.Fatal("defaults should survive a partial file")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"general": {
			"maxConcurrentMessages": 0
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for maxConcurrentMessages=0")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_MANGABOT_PAGE_TOKEN", "EAAB-page-token")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"channels": {
			"messenger": {
				"enabled": true,
				"pageAccessToken": "${TEST_MANGABOT_PAGE_TOKEN}",
				"verifyToken": "${TEST_MANGABOT_VERIFY:-let-me-in}"
			}
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Channels.Messenger.PageAccessToken != "EAAB-page-token" {
		t.Fatalf("expected token from env, got %q", cfg.Channels.Messenger.PageAccessToken)
	}
	if cfg.Channels.Messenger.VerifyToken != "let-me-in" {
		t.Fatalf("expected default verify token, got %q", cfg.Channels.Messenger.VerifyToken)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("MANGABOT_DOTENV_TEST=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("MANGABOT_DOTENV_TEST") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("MANGABOT_DOTENV_TEST"); got != "from-file" {
		t.Fatalf("expected from-file, got %q", got)
	}
}

func TestLoadDotEnv_ExistingVarWins(t *testing.T) {
	t.Setenv("MANGABOT_DOTENV_KEEP", "process")
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	os.WriteFile(envFile, []byte("MANGABOT_DOTENV_KEEP=file\n"), 0o644)

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("MANGABOT_DOTENV_KEEP"); got != "process" {
		t.Fatalf("expected process value to win, got %q", got)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "bot.resetKeyword")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "list" {
		t.Fatalf("expected 'list', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "site.baseUrl", "https://manga.example"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Site.BaseURL != "https://manga.example" {
		t.Fatalf("expected new baseUrl, got %q", cfg.Site.BaseURL)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "history.enabled", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.History.Enabled {
		t.Fatal("expected history.enabled=false")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "delivery.imageDelayMs", "1200"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Delivery.ImageDelayMs != 1200 {
		t.Fatalf("expected 1200, got %d", cfg.Delivery.ImageDelayMs)
	}
}

func TestSetByPath_UnknownKeyRejected(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "site.baseURL", "https://typo.example"); err == nil {
		t.Fatal("expected error for a key with the wrong case")
	}
	if err := SetByPath(cfg, "nosuch.key", "x"); err == nil {
		t.Fatal("expected error for an unknown section")
	}
	if cfg.Site.BaseURL != Defaults().Site.BaseURL {
		t.Fatalf("config changed on failed set: %q", cfg.Site.BaseURL)
	}
}

func TestSetByPath_TypeMismatch(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "history.enabled", "maybe"); err == nil {
		t.Fatal("expected error for a non-boolean value")
	}
	if err := SetByPath(cfg, "server.port", "eighty"); err == nil {
		t.Fatal("expected error for a non-numeric value")
	}
	if err := SetByPath(cfg, "channels.messenger", "x"); err == nil {
		t.Fatal("expected error when setting a whole section")
	}
}

func TestSetByPath_StringStaysString(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "channels.messenger.verifyToken", "12345"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Channels.Messenger.VerifyToken != "12345" {
		t.Fatalf("expected numeric-looking string, got %q", cfg.Channels.Messenger.VerifyToken)
	}
}

func TestSetByPath_List(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "channels.telegram.allowFrom", "111, 222,,333"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	got := []string(cfg.Channels.Telegram.AllowFrom)
	if len(got) != 3 || got[0] != "111" || got[2] != "333" {
		t.Fatalf("unexpected allowFrom %v", got)
	}
}

func TestGetByPath_Section(t *testing.T) {
	val, err := GetByPath(Defaults(), "delivery")
	if err != nil {
		t.Fatalf("get section: %v", err)
	}
	section, ok := val.(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", val)
	}
	if section["imageDelayMs"] != float64(500) {
		t.Fatalf("unexpected imageDelayMs %v", section["imageDelayMs"])
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"
	cfg.Channels.Messenger.PageAccessToken = "EAAB1234567890abcdefghij"
	cfg.Channels.Messenger.AppSecret = "messenger-secret-12345678"

	sanitized := Sanitize(cfg)

	if sanitized.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Fatal("telegram token should be masked")
	}
	if sanitized.Channels.Messenger.PageAccessToken != "EAAB****ghij" {
		t.Fatalf("unexpected masked page token %q", sanitized.Channels.Messenger.PageAccessToken)
	}
	if sanitized.Channels.Messenger.AppSecret == cfg.Channels.Messenger.AppSecret {
		t.Fatal("app secret should be masked")
	}
	if cfg.Channels.Telegram.Token != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Messenger.VerifyToken = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Channels.Messenger.VerifyToken != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Channels.Messenger.VerifyToken)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	for _, expected := range []string{"general.logLevel", "site.baseUrl", "delivery.imageDelayMs", "channels.messenger.webhookPath"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	input := `["hello", 123, "world", 456.0]`
	var list FlexStringList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 items, got %d", len(list))
	}
	if list[0] != "hello" || list[2] != "world" {
		t.Fatal("string items mismatch")
	}
	if list[1] != "123" || list[3] != "456" {
		t.Fatalf("number conversion mismatch: %v", list)
	}
}

func TestFlexStringList_InvalidJSON(t *testing.T) {
	var list FlexStringList
	err := json.Unmarshal([]byte(`not json`), &list)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_PAGE_TOKEN", "EAAB123")
	result := ExpandEnvVars(`{"pageAccessToken": "${TEST_PAGE_TOKEN}"}`)
	expected := `{"pageAccessToken": "EAAB123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-3000}"}`)
	expected := `{"port": "3000"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-3000}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	expected := `"fallback"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Site.ListingTimeoutDuration() != 10*time.Second || cfg.Site.ChapterTimeoutDuration() != 15*time.Second {
		t.Fatal("unexpected default timeouts")
	}
	if cfg.Delivery.ImageDelay() != 500*time.Millisecond {
		t.Fatalf("unexpected default image delay %v", cfg.Delivery.ImageDelay())
	}
	if cfg.Server.Addr() != "0.0.0.0:3000" {
		t.Fatalf("unexpected default addr %q", cfg.Server.Addr())
	}
}
