package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"mangabot/internal/config"
	"mangabot/internal/dedupe"
	"mangabot/internal/domain"
	"mangabot/internal/metrics"
)

const (
	messengerTextTimeout  = 5 * time.Second
	messengerImageTimeout = 10 * time.Second
	messengerMaxBody      = 1 << 20
)

// Messenger implements domain.Channel for a Facebook Page through the
// Messenger Platform webhook and Send API.
type Messenger struct {
	cfg    config.MessengerConfig
	seen   *dedupe.Cache
	logger *slog.Logger
	client *http.Client

	mu  sync.RWMutex
	bus domain.MessageBus
}

type MessengerChannelConfig struct {
	Config config.MessengerConfig
	Dedupe *dedupe.Cache // optional; drops redelivered message ids
	Client *http.Client  // optional
	Logger *slog.Logger
}

func NewMessenger(cfg MessengerChannelConfig) *Messenger {
	if cfg.Client == nil {
		// Per-request deadlines come from the send timeouts.
		cfg.Client = &http.Client{}
	}
	if cfg.Config.GraphBase == "" {
		cfg.Config.GraphBase = "https://graph.facebook.com"
	}
	if cfg.Config.APIVersion == "" {
		cfg.Config.APIVersion = "v19.0"
	}
	if cfg.Config.WebhookPath == "" {
		cfg.Config.WebhookPath = "/webhook"
	}
	return &Messenger{
		cfg:    cfg.Config,
		seen:   cfg.Dedupe,
		logger: cfg.Logger,
		client: cfg.Client,
	}
}

func (m *Messenger) Name() string { return "messenger" }

// Start attaches the bus. Inbound traffic arrives through the routes added by Mount.
func (m *Messenger) Start(_ context.Context, bus domain.MessageBus) error {
	m.mu.Lock()
	m.bus = bus
	m.mu.Unlock()
	m.logger.Info("messenger channel ready", "webhook", m.cfg.WebhookPath, "signed", m.cfg.AppSecret != "")
	return nil
}

func (m *Messenger) Stop() error { return nil }

// Mount registers the webhook verification and event routes on r.
func (m *Messenger) Mount(r chi.Router) {
	r.Get(m.cfg.WebhookPath, m.handleVerification)
	r.Post(m.cfg.WebhookPath, m.handleEvents)
}

// --- Webhook handlers ---

func (m *Messenger) handleVerification(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && m.cfg.VerifyToken != "" &&
		hmac.Equal([]byte(token), []byte(m.cfg.VerifyToken)) {
		m.logger.Info("messenger webhook verified")
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rw.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(rw, challenge)
		return
	}

	m.logger.Warn("messenger webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

func (m *Messenger) handleEvents(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, messengerMaxBody))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if m.cfg.AppSecret != "" && !verifyHMAC(body, m.cfg.AppSecret, r.Header.Get("X-Hub-Signature-256")) {
		m.logger.Warn("messenger invalid signature")
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	var payload fbPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		m.logger.Warn("messenger bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Messaging) == 0 {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	bus := m.bus
	m.mu.RUnlock()
	if bus == nil {
		http.Error(rw, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			evt, ok := m.toEvent(ev)
			if !ok {
				continue
			}
			if m.seen != nil && evt.MessageID != "" && m.seen.Seen(evt.MessageID) {
				metrics.DuplicatesTotal.Inc()
				m.logger.Debug("messenger duplicate dropped", "mid", evt.MessageID)
				continue
			}
			m.logger.Info("messenger message received", "from", evt.SenderID, "text_len", len(evt.Text))
			bus.Publish(evt)
		}
	}

	// Acknowledge right away; replies go out through the Send API.
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, "EVENT_RECEIVED")
}

func (m *Messenger) toEvent(ev fbMessaging) (domain.InboundEvent, bool) {
	if ev.Message == nil || ev.Message.IsEcho || ev.Sender.ID == "" {
		return domain.InboundEvent{}, false
	}
	if strings.TrimSpace(ev.Message.Text) == "" {
		return domain.InboundEvent{}, false
	}
	ts := time.Now()
	if ev.Timestamp > 0 {
		ts = time.UnixMilli(ev.Timestamp)
	}
	return domain.InboundEvent{
		Channel:   m.Name(),
		SenderID:  ev.Sender.ID,
		MessageID: ev.Message.MID,
		Text:      ev.Message.Text,
		Timestamp: ts,
	}, true
}

// verifyHMAC checks a "sha256=<hex>" signature over body.
func verifyHMAC(body []byte, secret, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || hexSig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(hexSig), []byte(computed))
}

// --- Send API ---

func (m *Messenger) SendText(ctx context.Context, recipientID, text string) error {
	return m.send(ctx, messengerTextTimeout, fbSendRequest{
		Recipient: fbID{ID: recipientID},
		Message:   fbOutMessage{Text: text},
	})
}

func (m *Messenger) SendImage(ctx context.Context, recipientID, imageURL string) error {
	return m.send(ctx, messengerImageTimeout, fbSendRequest{
		Recipient: fbID{ID: recipientID},
		Message: fbOutMessage{Attachment: &fbAttachment{
			Type:    "image",
			Payload: fbAttachmentPayload{URL: imageURL, IsReusable: true},
		}},
	})
}

func (m *Messenger) sendURL() string {
	return fmt.Sprintf("%s/%s/me/messages?access_token=%s",
		strings.TrimRight(m.cfg.GraphBase, "/"), m.cfg.APIVersion, url.QueryEscape(m.cfg.PageAccessToken))
}

func (m *Messenger) send(ctx context.Context, timeout time.Duration, payload fbSendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.sendURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("messenger API %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// --- Messenger payload types ---

type fbPayload struct {
	Object string    `json:"object"`
	Entry  []fbEntry `json:"entry"`
}

type fbEntry struct {
	ID        string        `json:"id"`
	Time      int64         `json:"time"`
	Messaging []fbMessaging `json:"messaging"`
}

type fbMessaging struct {
	Sender    fbID       `json:"sender"`
	Recipient fbID       `json:"recipient"`
	Timestamp int64      `json:"timestamp"`
	Message   *fbMessage `json:"message,omitempty"`
}

type fbID struct {
	ID string `json:"id"`
}

type fbMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

type fbSendRequest struct {
	Recipient fbID         `json:"recipient"`
	Message   fbOutMessage `json:"message"`
}

type fbOutMessage struct {
	Text       string        `json:"text,omitempty"`
	Attachment *fbAttachment `json:"attachment,omitempty"`
}

type fbAttachment struct {
	Type    string              `json:"type"`
	Payload fbAttachmentPayload `json:"payload"`
}

type fbAttachmentPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}
