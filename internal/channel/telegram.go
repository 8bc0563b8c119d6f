package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mangabot/internal/domain"
)

const telegramMaxMsgLen = 4000

var errTelegramNotStarted = errors.New("telegram bot not connected")

// Telegram implements domain.Channel for a Telegram bot using long polling.
type Telegram struct {
	token     string
	allowFrom []int64 // empty allows everyone
	welcome   string

	mu     sync.RWMutex
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user ids as strings
	Welcome   string   // reply to /start and /help
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		welcome:   cfg.Welcome,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if evt, ok := t.toEvent(update); ok {
				bus.Publish(evt)
			}
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates must not be called twice.
func (t *Telegram) Stop() error { return nil }

// toEvent filters an update down to an allowed, non-command text message.
// Commands are answered in place.
func (t *Telegram) toEvent(update tgbotapi.Update) (domain.InboundEvent, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return domain.InboundEvent{}, false
	}

	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", msg.From.ID,
			"username", msg.From.UserName,
		)
		return domain.InboundEvent{}, false
	}

	if strings.TrimSpace(msg.Text) == "" {
		return domain.InboundEvent{}, false
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			if t.welcome != "" {
				_ = t.sendText(msg.Chat.ID, t.welcome)
			}
		}
		return domain.InboundEvent{}, false
	}

	t.logger.Info("telegram message received",
		"user_id", msg.From.ID,
		"chat_id", msg.Chat.ID,
		"text_len", len(msg.Text),
	)

	// Replies go to the chat, so the chat id is the conversation key.
	return domain.InboundEvent{
		Channel:   t.Name(),
		SenderID:  strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.MessageID),
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}, true
}

func (t *Telegram) isAllowed(userID int64) bool {
	return len(t.allowFrom) == 0 || slices.Contains(t.allowFrom, userID)
}

func (t *Telegram) SendText(_ context.Context, recipientID, text string) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendText(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) SendImage(_ context.Context, recipientID, imageURL string) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	bot := t.client()
	if bot == nil {
		return errTelegramNotStarted
	}
	if _, err := bot.Send(tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(imageURL))); err != nil {
		return fmt.Errorf("telegram send photo: %w", err)
	}
	return nil
}

func (t *Telegram) sendText(chatID int64, text string) error {
	bot := t.client()
	if bot == nil {
		return errTelegramNotStarted
	}
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	return nil
}

func (t *Telegram) client() *tgbotapi.BotAPI {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bot
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring
// newline boundaries in the second half of a chunk. Cuts never split a rune.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < max(maxLen/2, 1) {
			cutAt = maxLen
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				// maxLen is smaller than one rune
				_, cutAt = utf8.DecodeRuneInString(text)
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
