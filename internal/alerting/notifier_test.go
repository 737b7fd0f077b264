package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sampleMessage() Message {
	return Message{
		FeedKey:    "gold:sjc",
		Title:      "vPrice - Biến động giá SJC",
		Body:       "1L: Mua 42.550.000 - Bán 42.800.000",
		Topic:      "sjcgold",
		CapturedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Biến động giá SJC") || !strings.Contains(received["text"], "Topic: sjcgold") {
		t.Fatalf("text 内容不正确: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleMessage()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleMessage()); err == nil {
		t.Fatal("502 应报错")
	}
}

type recordingNotifier struct {
	name string
	err  error
	got  []Message
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func TestMultiNotifierContinuesAfterFailure(t *testing.T) {
	failing := &recordingNotifier{name: "fcm", err: errors.New("quota exceeded")}
	ok := &recordingNotifier{name: "telegram"}
	multi := NewMultiNotifier(failing, nil, ok)

	if multi.Len() != 2 || multi.Name() != "fcm+telegram" {
		t.Fatalf("unexpected multi notifier %q (%d)", multi.Name(), multi.Len())
	}

	err := multi.Notify(context.Background(), sampleMessage())
	if err == nil || !strings.Contains(err.Error(), "fcm: quota exceeded") {
		t.Fatalf("expected joined fcm error, got %v", err)
	}
	if len(ok.got) != 1 {
		t.Fatalf("telegram should still receive the message")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
