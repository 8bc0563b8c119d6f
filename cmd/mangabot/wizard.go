package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mangabot/internal/config"
	"mangabot/internal/conversation"
)

var knownChannels = []struct {
	ID   string
	Desc string
}{
	{"messenger", "Facebook Messenger page (webhook)"},
	{"telegram", "Telegram bot (long polling)"},
	{"both", "Messenger and Telegram"},
}

// runWizard asks for the settings a new install needs and saves them to cfgPath.
func runWizard(cfgPath string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = starterConfig()
	}

	reader := bufio.NewReader(in)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, " [%s]: ", def)
		} else {
			fmt.Fprint(out, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Site
	fmt.Fprintln(out, "\n--- Step 1: Manga site ---")
	fmt.Fprint(out, "Base URL of the listing site")
	site, err := prompt(cfg.Site.BaseURL)
	if err != nil {
		return err
	}
	cfg.Site.BaseURL = strings.TrimRight(site, "/")

	// Step 2: Locale and reset keyword
	fmt.Fprintln(out, "\n--- Step 2: Language ---")
	fmt.Fprintf(out, "Reply language (%s)", strings.Join(conversation.Locales(), ", "))
	locale, err := prompt(cfg.Bot.Locale)
	if err != nil {
		return err
	}
	cfg.Bot.Locale = locale
	fmt.Fprint(out, "Keyword that returns to search")
	keyword, err := prompt(cfg.Bot.ResetKeyword)
	if err != nil {
		return err
	}
	cfg.Bot.ResetKeyword = keyword

	// Step 3: Channel
	fmt.Fprintln(out, "\n--- Step 3: Channel ---")
	for i, c := range knownChannels {
		fmt.Fprintf(out, "  %d) %s: %s\n", i+1, c.ID, c.Desc)
	}
	fmt.Fprintf(out, "Choose channel (1-%d)", len(knownChannels))
	choice, err := prompt("1")
	if err != nil {
		return err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n != 1 || idx < 1 || idx > len(knownChannels) {
		idx = 1
	}
	chID := knownChannels[idx-1].ID

	cfg.Channels.Messenger.Enabled = chID == "messenger" || chID == "both"
	cfg.Channels.Telegram.Enabled = chID == "telegram" || chID == "both"

	if cfg.Channels.Messenger.Enabled {
		fmt.Fprint(out, "Page access token (value or ${VAR})")
		tok, err := prompt(placeholderOr(cfg.Channels.Messenger.PageAccessToken, "MESSENGER_PAGE_ACCESS_TOKEN"))
		if err != nil {
			return err
		}
		cfg.Channels.Messenger.PageAccessToken = tok

		fmt.Fprint(out, "Webhook verify token (value or ${VAR})")
		verify, err := prompt(placeholderOr(cfg.Channels.Messenger.VerifyToken, "MESSENGER_VERIFY_TOKEN"))
		if err != nil {
			return err
		}
		cfg.Channels.Messenger.VerifyToken = verify

		fmt.Fprint(out, "App secret for signature checks (empty to skip)")
		secret, err := prompt(cfg.Channels.Messenger.AppSecret)
		if err != nil {
			return err
		}
		cfg.Channels.Messenger.AppSecret = secret
	}

	if cfg.Channels.Telegram.Enabled {
		fmt.Fprint(out, "Telegram bot token (from @BotFather, value or ${VAR})")
		tok, err := prompt(placeholderOr(cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN"))
		if err != nil {
			return err
		}
		cfg.Channels.Telegram.Token = tok
	}
	fmt.Fprintf(out, "  Using channel: %s\n", chID)

	// Save
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConfig saved to %s\n", cfgPath)
	fmt.Fprintln(out, "Next: run 'mangabot doctor', then 'mangabot serve' (or 'mangabot chat' to try it locally).")
	return nil
}

func placeholderOr(current, envVar string) string {
	if current != "" {
		return current
	}
	return "${" + envVar + "}"
}
