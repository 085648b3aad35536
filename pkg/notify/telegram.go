package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-fallwatch/internal/httpc"
)

// Telegram defaults.
const (
	DefaultTelegramURL      = "https://api.telegram.org"
	DefaultTelegramTimeout  = 15 * time.Second
	DefaultTelegramLocation = "Unknown"
)

// TelegramConfig configures the Telegram bot notifier.
type TelegramConfig struct {
	Token       string
	ChatID      string
	BaseURL     string
	Timeout     time.Duration
	Location    string
	JPEGQuality int
}

// Telegram sends alerts through the Telegram Bot API.
type Telegram struct {
	client   *resty.Client
	chatID   string
	location string
	quality  int

	// Episodes whose photo went out but whose text has not, so a retried
	// SendAlert only repeats the step that failed.
	mu        sync.Mutex
	photoSent map[uuid.UUID]struct{}
}

// maxPendingPhotos bounds photoSent when texts keep failing.
const maxPendingPhotos = 64

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// NewTelegram creates the notifier. Token and ChatID are required.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, errors.New("telegram: token and chat id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTelegramURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTelegramTimeout
	}
	if cfg.Location == "" {
		cfg.Location = DefaultTelegramLocation
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/") + "/bot" + cfg.Token
	client := resty.NewWithClient(httpc.NewClient(cfg.Timeout)).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return &Telegram{
		client:    client,
		chatID:    cfg.ChatID,
		location:  cfg.Location,
		quality:   cfg.JPEGQuality,
		photoSent: make(map[uuid.UUID]struct{}),
	}, nil
}

// Ping checks the bot token with getMe and returns the bot username.
func (t *Telegram) Ping(ctx context.Context) (string, error) {
	out, err := t.call(t.client.R().SetContext(ctx), http.MethodGet, "/getMe")
	if err != nil {
		return "", err
	}
	var me struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(out.Result, &me); err != nil {
		return "", fmt.Errorf("%w: telegram getMe: %v", ErrNotification, err)
	}
	return me.Username, nil
}

// SendAlert posts the annotated frame with a caption, then a separate
// emergency text. Without a frame only the text is sent. When the photo of
// an episode was already delivered, a repeated call sends only the text.
func (t *Telegram) SendAlert(ctx context.Context, a Alert) error {
	if a.Frame != nil && a.Frame.Image != nil && !t.photoDelivered(a.Episode) {
		img, err := a.Frame.JPEG(t.quality)
		if err != nil {
			return fmt.Errorf("%w: encode alert frame: %v", ErrNotification, err)
		}
		caption := fmt.Sprintf("🚨 FALL DETECTED!\n⏰ Time: %s\n📐 Aspect Ratio: %.2f\n⚠️ Please check immediately!",
			a.Time.Format("2006-01-02 15:04:05"), a.AspectRatio)

		req := t.client.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"chat_id": t.chatID,
				"caption": caption,
			}).
			SetFileReader("photo", "fall_alert.jpg", bytes.NewReader(img))
		if _, err := t.call(req, http.MethodPost, "/sendPhoto"); err != nil {
			return err
		}
		t.markPhoto(a.Episode)
	}

	text := fmt.Sprintf("🚨 EMERGENCY: Possible fall detected!\nLocation: %s\nTime: %s",
		t.location, a.Time.Format("15:04:05"))
	if err := t.SendMessage(ctx, text); err != nil {
		return err
	}
	t.forgetPhoto(a.Episode)
	return nil
}

func (t *Telegram) photoDelivered(episode uuid.UUID) bool {
	if episode == uuid.Nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.photoSent[episode]
	return ok
}

func (t *Telegram) markPhoto(episode uuid.UUID) {
	if episode == uuid.Nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.photoSent) >= maxPendingPhotos {
		clear(t.photoSent)
	}
	t.photoSent[episode] = struct{}{}
}

func (t *Telegram) forgetPhoto(episode uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.photoSent, episode)
}

// SendMessage implements Notifier. Text is escaped for HTML parse mode.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	req := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":    t.chatID,
			"text":       html.EscapeString(text),
			"parse_mode": "HTML",
		})
	_, err := t.call(req, http.MethodPost, "/sendMessage")
	return err
}

func (t *Telegram) call(req *resty.Request, method, path string) (*telegramResponse, error) {
	var out telegramResponse
	resp, err := req.SetResult(&out).SetError(&out).Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: telegram %s: %v", ErrNotification, path, err)
	}
	if resp.IsError() || !out.OK {
		return nil, fmt.Errorf("%w: telegram %s: status %d: %s",
			ErrNotification, path, resp.StatusCode(), out.Description)
	}
	return &out, nil
}
