package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mangabot/internal/config"
	"mangabot/internal/scraper"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your MangaBot installation",
		Long: `Verifies that the configuration, channel credentials, history database,
listen port and manga site are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("MangaBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'mangabot init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Channels and unresolved ${VAR} placeholders
			m := cfg.Channels.Messenger
			switch {
			case !m.Enabled:
				printWarn("Messenger", "disabled")
				warned++
			case hasPlaceholder(m.PageAccessToken, m.VerifyToken, m.AppSecret):
				printFail("Messenger", "token contains an unresolved ${VAR}; check your environment or .env")
				failed++
			case m.AppSecret == "":
				printWarn("Messenger", "no appSecret, webhook signatures are not verified")
				warned++
			default:
				printPass("Messenger", "webhook at "+m.WebhookPath)
				passed++
			}

			tg := cfg.Channels.Telegram
			if tg.Enabled {
				if hasPlaceholder(tg.Token) {
					printFail("Telegram", "token contains an unresolved ${VAR}")
					failed++
				} else {
					printPass("Telegram", "configured")
					passed++
				}
			}
			if !m.Enabled && !tg.Enabled {
				printFail("Channels", "no channels enabled, 'serve' has nothing to run")
				failed++
			}

			// 4. History database writable
			if cfg.History.Enabled {
				if err := checkDatabase(cfg.History.DBPath); err != nil {
					printFail("History database", err.Error())
					failed++
				} else {
					printPass("History database", cfg.History.DBPath)
					passed++
				}
			}

			// 5. Listen port
			if err := checkPort(cfg.Server.Addr()); err != nil {
				printWarn("Server port", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
				warned++
			} else {
				printPass("Server port", cfg.Server.Addr()+" available")
				passed++
			}

			// 6. Site reachable
			if !offline {
				if title, err := checkSite(cmd.Context(), cfg.Site.BaseURL, cfg.Site.UserAgent); err != nil {
					printWarn("Manga site", err.Error())
					warned++
				} else {
					printPass("Manga site", fmt.Sprintf("%s (%q)", cfg.Site.BaseURL, title))
					passed++
				}
			}

			// 7. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running MangaBot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nMangaBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! MangaBot is ready to run.\n")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip the site reachability check")
	return cmd
}

func hasPlaceholder(values ...string) bool {
	for _, v := range values {
		if strings.Contains(v, "${") {
			return true
		}
	}
	return false
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

// checkSite fetches the site root the way the extractor fetches listings and
// returns the page title.
func checkSite(ctx context.Context, baseURL, userAgent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	doc, err := scraper.NewHTTPFetcher(nil, userAgent).Fetch(ctx, baseURL)
	if err != nil {
		return "", fmt.Errorf("unreachable: %w", err)
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
