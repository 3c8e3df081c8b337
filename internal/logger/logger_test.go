package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short", input: "hello", maxLen: 10, want: "hello"},
		{name: "exact", input: "hello", maxLen: 5, want: "hello"},
		{name: "long", input: "hello world", maxLen: 8, want: "hello..."},
		{name: "tiny limit", input: "hello", maxLen: 2, want: "..."},
		{name: "multibyte", input: "çãoçãoção", maxLen: 6, want: "ção..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		update   *models.Update
		wantType string
		wantInfo bool
	}{
		{
			name: "message",
			update: &models.Update{ID: 1, Message: &models.Message{
				ID: 10, Chat: models.Chat{ID: -100, Type: models.ChatTypeSupergroup},
				From: &models.User{ID: 7}, Text: "hello",
			}},
			wantType: `"update_type":"message"`,
		},
		{
			name: "edited message with caption",
			update: &models.Update{ID: 2, EditedMessage: &models.Message{
				ID: 11, Chat: models.Chat{ID: -100, Type: models.ChatTypeGroup}, Caption: "photo caption",
			}},
			wantType: `"update_type":"edited_message"`,
		},
		{
			name: "command",
			update: &models.Update{ID: 4, Message: &models.Message{
				ID: 12, Chat: models.Chat{ID: -100, Type: models.ChatTypeSupergroup},
				From: &models.User{ID: 7}, Text: "/Summarize@dogbot please",
			}},
			wantType: `"command":"summarize"`,
			wantInfo: true,
		},
		{
			name:     "other",
			update:   &models.Update{ID: 3},
			wantType: `"update_type":"other"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			called := false
			next := func(context.Context, *bot.Bot, *models.Update) { called = true }
			Middleware(log)(next)(context.Background(), nil, tt.update)

			if !called {
				t.Fatal("next handler was not called")
			}
			out := buf.String()
			if !strings.Contains(out, tt.wantType) {
				t.Errorf("log output missing %s:\n%s", tt.wantType, out)
			}
			if strings.Count(out, "\n") != 2 {
				t.Errorf("expected start and finish lines, got:\n%s", out)
			}
			if got := strings.Contains(out, `"level":"INFO"`); got != tt.wantInfo {
				t.Errorf("info level = %v, want %v:\n%s", got, tt.wantInfo, out)
			}
		})
	}
}

func TestNewLoggerLevels(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}

	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })

	for level, want := range tests {
		log := NewLogger(level, level == "error")
		if !log.Enabled(context.Background(), want) {
			t.Errorf("NewLogger(%q) does not enable %v", level, want)
		}
		if want > slog.LevelDebug && log.Enabled(context.Background(), want-1) {
			t.Errorf("NewLogger(%q) enables levels below %v", level, want)
		}
	}
}
