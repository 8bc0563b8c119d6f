package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mangabot/internal/config"
	"mangabot/internal/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestStarterConfig_Validates(t *testing.T) {
	cfg := starterConfig()
	require.NoError(t, config.Validate(cfg))
	assert.True(t, cfg.Channels.Messenger.Enabled)
	assert.Equal(t, "${MESSENGER_PAGE_ACCESS_TOKEN}", cfg.Channels.Messenger.PageAccessToken)
	assert.Empty(t, cfg.Channels.Messenger.AppSecret)
}

func TestStarterConfig_ExpandsFromEnv(t *testing.T) {
	t.Setenv("MESSENGER_PAGE_ACCESS_TOKEN", "page-token")
	t.Setenv("MESSENGER_VERIFY_TOKEN", "verify-me")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, config.Save(path, starterConfig()))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "page-token", cfg.Channels.Messenger.PageAccessToken)
	assert.Equal(t, "verify-me", cfg.Channels.Messenger.VerifyToken)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, closeLog, err := newLogger(config.GeneralConfig{LogLevel: "warn", LogFormat: "json"}, &buf)
	require.NoError(t, err)
	defer closeLog()

	log.Info("hidden")
	log.Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}

func TestNewLogger_File(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "mangabot.log")
	log, closeLog, err := newLogger(config.GeneralConfig{LogLevel: "bogus", LogFile: logFile}, &buf)
	require.NoError(t, err)

	log.Info("to both")
	closeLog()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestHasPlaceholder(t *testing.T) {
	assert.True(t, hasPlaceholder("ok", "${MESSENGER_VERIFY_TOKEN}"))
	assert.False(t, hasPlaceholder("abc", ""))
	assert.False(t, hasPlaceholder())
}

func TestRenderService_Systemd(t *testing.T) {
	spec := newServiceSpec("/usr/local/bin/mangabot", "/home/u/.mangabot/config.json", "/home/u/.mangabot/logs")
	unit, err := renderService(systemdTemplate, spec)
	require.NoError(t, err)
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/mangabot serve --config /home/u/.mangabot/config.json\n")
	assert.Contains(t, unit, "WorkingDirectory=/home/u/.mangabot\n")
	assert.NotContains(t, unit, "--env-file")
}

func TestRenderService_LaunchdWithEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MESSENGER_VERIFY_TOKEN=x\n"), 0o600))

	spec := newServiceSpec("/opt/mangabot", cfgPath, filepath.Join(dir, "logs"))
	assert.Equal(t, []string{"serve", "--config", cfgPath, "--env-file", filepath.Join(dir, ".env")}, spec.Args)

	plist, err := renderService(launchdTemplate, spec)
	require.NoError(t, err)
	assert.Contains(t, plist, "<string>"+serviceLabel+"</string>")
	assert.Contains(t, plist, "<string>--env-file</string>")
	assert.Contains(t, plist, "<string>"+filepath.Join(dir, "logs", "serve.err.log")+"</string>")
}

func TestTargetFor(t *testing.T) {
	linux, err := targetFor("linux", "/home/u")
	require.NoError(t, err)
	assert.Equal(t, "/home/u/.config/systemd/user/mangabot.service", linux.path)

	mac, err := targetFor("darwin", "/Users/u")
	require.NoError(t, err)
	assert.Equal(t, "/Users/u/Library/LaunchAgents/net.mangabot.serve.plist", mac.path)

	_, err = targetFor("windows", "C:/u")
	require.Error(t, err)
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "history.db")
	cfgPath := filepath.Join(src, "config.yaml")
	require.NoError(t, os.WriteFile(dbPath, []byte("db-bytes"), 0o600))
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal-bytes"), 0o600))
	require.NoError(t, os.WriteFile(cfgPath, []byte("site:\n  baseUrl: https://x.test\n"), 0o600))

	files := backupFiles(dbPath, cfgPath)
	assert.Equal(t, []string{dbPath, dbPath + "-wal", cfgPath}, files)

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, createTarGz(archive, files))

	dst := t.TempDir()
	newDB := filepath.Join(dst, "data", "history.db")
	newCfg := filepath.Join(dst, "config.yaml")
	restored, err := extractTarGz(archive, newDB, newCfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{newDB, newDB + "-wal", newCfg}, restored)

	data, err := os.ReadFile(newDB)
	require.NoError(t, err)
	assert.Equal(t, "db-bytes", string(data))
	data, err = os.ReadFile(newCfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://x.test")
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, os.WriteFile(bad, []byte("plain"), 0o600))
	_, err := extractTarGz(bad, "db", "cfg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid gzip file")
}

func TestRestoreTarget(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"history.db", "/d/h.db", true},
		{"history.db-wal", "/d/h.db-wal", true},
		{"history.db-shm", "/d/h.db-shm", true},
		{"config.json", "/c/config.json", true},
		{"../../etc/passwd", "", false},
	}
	for _, tt := range tests {
		got, ok := restoreTarget(tt.name, "/d/h.db", "/c/config.json")
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "2.0 KB", humanSize(2048))
	assert.Equal(t, "1.5 MB", humanSize(1536*1024))
}

func TestPrintStats(t *testing.T) {
	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	for _, q := range []string{"Solo Leveling", "solo leveling", "One Piece"} {
		require.NoError(t, store.RecordSearch(ctx, history.SearchRecord{
			UserKey: "messenger:1", Query: q, Title: q, Chapters: 3, Found: true, At: now,
		}))
	}
	require.NoError(t, store.RecordDelivery(ctx, history.DeliveryRecord{
		BatchID: "b1", UserKey: "messenger:1", Title: "One Piece", Chapter: 1, Images: 4, Sent: 5, At: now,
	}))

	var out bytes.Buffer
	require.NoError(t, printStats(ctx, &out, store, time.Time{}, 5))

	text := out.String()
	assert.Contains(t, text, "all time")
	assert.Contains(t, text, "Searches:    3 (3 found)")
	assert.Contains(t, text, "Deliveries:  1")
	lines := strings.Split(text, "\n")
	var top []string
	for _, l := range lines {
		if strings.Contains(l, ". ") {
			top = append(top, strings.TrimSpace(l))
		}
	}
	require.Len(t, top, 2)
	assert.True(t, strings.HasPrefix(top[0], "1. solo leveling"), top[0])
}

func TestRunWizard_Telegram(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	input := strings.Join([]string{
		"https://manga.example/", // site
		"ar",                     // locale
		"",                       // reset keyword: keep default
		"2",                      // telegram
		"123:abc",                // token
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runWizard(cfgPath, strings.NewReader(input), &out))
	assert.Contains(t, out.String(), "Config saved to")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "https://manga.example", cfg.Site.BaseURL)
	assert.Equal(t, "ar", cfg.Bot.Locale)
	assert.Equal(t, "list", cfg.Bot.ResetKeyword)
	assert.False(t, cfg.Channels.Messenger.Enabled)
	assert.True(t, cfg.Channels.Telegram.Enabled)
	assert.Equal(t, "123:abc", cfg.Channels.Telegram.Token)
}

func TestRunWizard_RejectsInvalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	input := "not a url\nxx\n\n1\n\n\n\n"

	err := runWizard(cfgPath, strings.NewReader(input), &bytes.Buffer{})
	require.Error(t, err)
	_, statErr := os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckSite(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html><head><title> Lek Manga </title></head><body></body></html>"))
	}))
	defer srv.Close()

	title, err := checkSite(context.Background(), srv.URL, "MangaBot/1.0")
	require.NoError(t, err)
	assert.Equal(t, "Lek Manga", title)
	assert.Equal(t, "MangaBot/1.0", gotUA)
}

func TestCheckSite_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := checkSite(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestCheckDatabase(t *testing.T) {
	require.NoError(t, checkDatabase(filepath.Join(t.TempDir(), "nested", "history.db")))
}
