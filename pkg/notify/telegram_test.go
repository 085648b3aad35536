package notify

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-fallwatch/pkg/video"
)

type capturedRequest struct {
	Path    string
	Fields  map[string]string
	Photo   []byte
	Content string
}

type fakeBot struct {
	mu       sync.Mutex
	requests []capturedRequest
	fail     map[string]int
	failures map[string]int // path -> number of calls that fail before succeeding
}

func (b *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := capturedRequest{Path: r.URL.Path, Fields: map[string]string{}, Content: r.Header.Get("Content-Type")}

	if strings.HasPrefix(req.Content, "multipart/") {
		if err := r.ParseMultipartForm(10 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				req.Fields[k] = v[0]
			}
			if fh, ok := r.MultipartForm.File["photo"]; ok {
				f, _ := fh[0].Open()
				req.Photo, _ = io.ReadAll(f)
				f.Close()
			}
		}
	} else if err := r.ParseForm(); err == nil {
		for k, v := range r.PostForm {
			req.Fields[k] = v[0]
		}
	}

	b.mu.Lock()
	b.requests = append(b.requests, req)
	status := b.fail[r.URL.Path]
	if b.failures[r.URL.Path] > 0 {
		b.failures[r.URL.Path]--
		status = http.StatusBadGateway
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Bad Request: chat not found"})
		return
	}
	if strings.HasSuffix(r.URL.Path, "/getMe") {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"username": "fallwatch_bot"}})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 1}})
}

func (b *fakeBot) all() []capturedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedRequest(nil), b.requests...)
}

func newTestTelegram(t *testing.T, bot *fakeBot) *Telegram {
	t.Helper()
	srv := httptest.NewServer(bot)
	t.Cleanup(srv.Close)

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: "42", BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return tg
}

func TestNewTelegram_RequiresCredentials(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{Token: "x"})
	assert.Error(t, err)
	_, err = NewTelegram(TelegramConfig{ChatID: "1"})
	assert.Error(t, err)
}

func TestTelegram_Ping(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(t, bot)

	name, err := tg.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallwatch_bot", name)
	assert.Equal(t, "/bot123:abc/getMe", bot.all()[0].Path)
}

func TestTelegram_SendAlertPostsPhotoThenText(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(t, bot)

	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.Local)
	frame := &video.Frame{Image: image.NewRGBA(image.Rect(0, 0, 32, 24))}
	err := tg.SendAlert(context.Background(), Alert{Frame: frame, AspectRatio: 0.3, Time: at})
	require.NoError(t, err)

	reqs := bot.all()
	require.Len(t, reqs, 2)

	photo := reqs[0]
	assert.Equal(t, "/bot123:abc/sendPhoto", photo.Path)
	assert.Equal(t, "42", photo.Fields["chat_id"])
	assert.Contains(t, photo.Fields["caption"], "🚨 FALL DETECTED!")
	assert.Contains(t, photo.Fields["caption"], "Time: 2026-05-06 07:08:09")
	assert.Contains(t, photo.Fields["caption"], "Aspect Ratio: 0.30")
	require.NotEmpty(t, photo.Photo)
	assert.Equal(t, []byte{0xFF, 0xD8}, photo.Photo[:2], "photo should be a JPEG")

	text := reqs[1]
	assert.Equal(t, "/bot123:abc/sendMessage", text.Path)
	assert.Equal(t, "HTML", text.Fields["parse_mode"])
	assert.Contains(t, text.Fields["text"], "EMERGENCY: Possible fall detected!")
	assert.Contains(t, text.Fields["text"], "Location: Unknown")
	assert.Contains(t, text.Fields["text"], "Time: 07:08:09")
}

func TestTelegram_SendAlertWithoutFrame(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(t, bot)

	require.NoError(t, tg.SendAlert(context.Background(), Alert{Time: time.Now()}))
	reqs := bot.all()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].Path, "/sendMessage"))
}

func TestTelegram_ErrorsWrapErrNotification(t *testing.T) {
	bot := &fakeBot{fail: map[string]int{"/bot123:abc/sendMessage": http.StatusBadRequest}}
	tg := newTestTelegram(t, bot)

	err := tg.SendMessage(context.Background(), RecoveredText)
	require.ErrorIs(t, err, ErrNotification)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegram_EscapesHTML(t *testing.T) {
	bot := &fakeBot{}
	tg := newTestTelegram(t, bot)

	require.NoError(t, tg.SendMessage(context.Background(), "error: <nil> & more"))
	assert.Equal(t, "error: &lt;nil&gt; &amp; more", bot.all()[0].Fields["text"])
}

func TestTelegram_Unreachable(t *testing.T) {
	tg, err := NewTelegram(TelegramConfig{Token: "t", ChatID: "c", BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)
	assert.ErrorIs(t, tg.SendMessage(context.Background(), "hi"), ErrNotification)
}

func TestTelegram_RetryAfterTextFailureSkipsPhoto(t *testing.T) {
	bot := &fakeBot{failures: map[string]int{"/bot123:abc/sendMessage": 1}}
	tg := newTestTelegram(t, bot)

	a := Alert{
		Frame:   &video.Frame{Image: image.NewRGBA(image.Rect(0, 0, 16, 16))},
		Time:    time.Now(),
		Episode: uuid.New(),
	}
	require.ErrorIs(t, tg.SendAlert(context.Background(), a), ErrNotification)
	require.NoError(t, tg.SendAlert(context.Background(), a))

	var paths []string
	for _, r := range bot.all() {
		paths = append(paths, strings.TrimPrefix(r.Path, "/bot123:abc"))
	}
	assert.Equal(t, []string{"/sendPhoto", "/sendMessage", "/sendMessage"}, paths)

	// A delivered alert is forgotten: the same episode sent again gets a photo.
	require.NoError(t, tg.SendAlert(context.Background(), a))
	assert.Len(t, bot.all(), 5)
}
