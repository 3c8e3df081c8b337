package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/dogbot/internal/bot/jobs"
	"github.com/edgard/dogbot/internal/config"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/engine"
)

const (
	testChatID int64 = -100555
	testDate         = 1741262400
)

var (
	testGroup = models.Chat{ID: testChatID, Type: models.ChatTypeSupergroup, Title: "pack"}
	testUser  = &models.User{ID: 11, FirstName: "Ana", Username: "ana"}
	testBot   = &models.User{ID: 99, FirstName: "Dog", Username: "dogbot", IsBot: true}
)

type sent struct {
	chatID  any
	text    string
	replyTo int
	sticker string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sent{chatID: p.ChatID, text: p.Text}
	if p.ReplyParameters != nil {
		m.replyTo = p.ReplyParameters.MessageID
	}
	f.sent = append(f.sent, m)
	return &models.Message{ID: 500 + len(f.sent)}, nil
}

func (f *fakeSender) SendSticker(_ context.Context, p *bot.SendStickerParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sent{chatID: p.ChatID}
	if s, ok := p.Sticker.(*models.InputFileString); ok {
		m.sticker = s.Data
	}
	f.sent = append(f.sent, m)
	return &models.Message{}, nil
}

func (f *fakeSender) SendChatAction(context.Context, *bot.SendChatActionParams) (bool, error) {
	return true, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.sticker == "" {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeSender) stickers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.sticker != "" {
			out = append(out, m.sticker)
		}
	}
	return out
}

type fakeDispatcher struct {
	jobs []jobs.Job
	err  error
}

func (f *fakeDispatcher) Enqueue(_ context.Context, job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeSummarizer struct {
	adm       *engine.Admission
	err       error
	gotChat   int64
	gotStyle  database.SummaryStyle
	abandoned []engine.Admission
}

func (f *fakeSummarizer) TryAdmitSummarization(_ context.Context, chatID int64, style database.SummaryStyle) (*engine.Admission, error) {
	f.gotChat = chatID
	f.gotStyle = style
	return f.adm, f.err
}

func (f *fakeSummarizer) AbandonSummarization(_ context.Context, adm engine.Admission) {
	f.abandoned = append(f.abandoned, adm)
}

type fixture struct {
	deps       HandlerDeps
	store      database.Store
	sender     *fakeSender
	jobs       *fakeDispatcher
	summarizer *fakeSummarizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	cfg := &config.Config{
		Telegram: config.TelegramConfig{
			TranslateLanguages: []string{"english", "polish", "french"},
			DefaultLanguage:    "english",
			BotInfo:            testBot,
		},
		Messages: config.MessagesConfig{
			Start:           "hello @botname",
			NotGroupChat:    "groups only",
			NotWhitelisted:  "not allowed",
			FromBot:         "begone",
			SummaryRunning:  "still running",
			NoHistory:       "nothing yet",
			SummaryFailed:   "failed",
			TranslateUsage:  "usage: %s",
			TranslateFailed: "translation failed",
			Busy:            "busy",
			OptOutConfirmed: "deleted %d",
			OptInConfirmed:  "welcome back",
			StatsEmpty:      "no stats",
			GeneralError:    "oops",
			Stickers:        map[string]string{config.StickerGun: "gun-id", config.StickerSprayBottle: "spray-id"},
		},
	}

	f := &fixture{
		store:      store,
		sender:     &fakeSender{},
		jobs:       &fakeDispatcher{},
		summarizer: &fakeSummarizer{},
	}
	f.deps = HandlerDeps{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:     cfg,
		Store:      store,
		Summarizer: f.summarizer,
		Jobs:       f.jobs,
	}
	return f
}

func message(id int, text string) *models.Message {
	return &models.Message{ID: id, Chat: testGroup, From: testUser, Date: testDate + id, Text: text}
}

func TestMessageHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		msg        *models.Message
		wantStored bool
		wantReply  bool
	}{
		{name: "plain message", msg: message(1, "hi all"), wantStored: true},
		{name: "mention", msg: message(2, "hey @dogbot, sup?"), wantStored: true, wantReply: true},
		{
			name:       "reply to bot",
			msg:        &models.Message{ID: 3, Chat: testGroup, From: testUser, Date: testDate, Text: "good dog", ReplyToMessage: &models.Message{ID: 1, From: testBot}},
			wantStored: true,
			wantReply:  true,
		},
		{name: "private chat", msg: &models.Message{ID: 4, Chat: models.Chat{ID: 11, Type: models.ChatTypePrivate}, From: testUser, Date: testDate, Text: "@dogbot hi"}},
		{name: "no text", msg: &models.Message{ID: 5, Chat: testGroup, From: testUser, Date: testDate, Photo: []models.PhotoSize{{FileID: "p"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()

			messageHandler{f.deps}.handle(ctx, f.sender, &models.Update{Message: tt.msg})

			chat, err := f.store.GetChatByAPIID(ctx, tt.msg.Chat.ID)
			if !tt.wantStored {
				if err == nil {
					if _, err := f.store.GetMessageByAPIID(ctx, chat.ID, int64(tt.msg.ID)); err == nil {
						t.Fatal("message stored, want skipped")
					}
				}
			} else {
				if err != nil {
					t.Fatalf("GetChatByAPIID() error = %v", err)
				}
				if _, err := f.store.GetMessageByAPIID(ctx, chat.ID, int64(tt.msg.ID)); err != nil {
					t.Fatalf("GetMessageByAPIID() error = %v", err)
				}
			}

			if got := len(f.jobs.jobs) == 1; got != tt.wantReply {
				t.Fatalf("reply queued = %v, want %v", got, tt.wantReply)
			}
			if !tt.wantReply {
				return
			}
			job := f.jobs.jobs[0]
			if job.Kind != jobs.KindReply {
				t.Errorf("job kind = %q, want %q", job.Kind, jobs.KindReply)
			}
			var p jobs.ReplyPayload
			if err := job.Decode(&p); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if p.ChatAPIID != testChatID || p.MessageAPIID != tt.msg.ID || p.MessageID == 0 || p.ChatID != chat.ID {
				t.Errorf("payload = %+v", p)
			}
		})
	}
}

func TestMessageHandlerQueueFull(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.jobs.err = jobs.ErrQueueFull

	messageHandler{f.deps}.handle(context.Background(), f.sender, &models.Update{Message: message(1, "@dogbot hello")})

	if got := f.sender.texts(); len(got) != 1 || got[0] != "busy" {
		t.Errorf("sent = %q, want busy notice", got)
	}
}

func TestMessageHandlerEdit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	h := messageHandler{f.deps}

	h.handle(ctx, f.sender, &models.Update{Message: message(1, "the cat sat")})
	h.handle(ctx, f.sender, &models.Update{EditedMessage: message(1, "the dog sat")})

	chat, err := f.store.GetChatByAPIID(ctx, testChatID)
	if err != nil {
		t.Fatalf("GetChatByAPIID() error = %v", err)
	}
	got, err := f.store.GetMessageByAPIID(ctx, chat.ID, 1)
	if err != nil {
		t.Fatalf("GetMessageByAPIID() error = %v", err)
	}
	if got.Text != "the dog sat" {
		t.Errorf("text = %q, want edited text", got.Text)
	}
	if len(f.jobs.jobs) != 0 {
		t.Errorf("edit queued %d jobs", len(f.jobs.jobs))
	}
}

func TestDescribeEdit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		before, after, want string
	}{
		{"same", "same", "same"},
		{"", "new", "{+new+}"},
		{"the cat sat", "the dog sat", "the [-cat-]{+dog+} sat"},
	}
	for _, tt := range tests {
		if got := describeEdit(tt.before, tt.after); got != tt.want {
			t.Errorf("describeEdit(%q, %q) = %q, want %q", tt.before, tt.after, got, tt.want)
		}
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		msg         *models.Message
		whitelist   []int64
		optedOut    bool
		want        bool
		wantText    string
		wantSticker string
	}{
		{name: "group member", msg: message(1, "/summarize"), want: true},
		{
			name:        "bot sender",
			msg:         &models.Message{ID: 1, Chat: testGroup, From: &models.User{ID: 50, IsBot: true}, Text: "/summarize"},
			wantText:    "begone",
			wantSticker: "gun-id",
		},
		{
			name:     "private chat",
			msg:      &models.Message{ID: 1, Chat: models.Chat{ID: 11, Type: models.ChatTypePrivate}, From: testUser, Text: "/summarize"},
			wantText: "groups only",
		},
		{name: "not whitelisted", msg: message(1, "/summarize"), whitelist: []int64{-1}, wantText: "not allowed"},
		{name: "whitelisted", msg: message(1, "/summarize"), whitelist: []int64{testChatID}, want: true},
		{name: "opted out", msg: message(1, "/summarize"), optedOut: true},
		{name: "opted out asking back in", msg: message(1, "/"+CommandOptIn), optedOut: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			if tt.whitelist != nil {
				f.deps.Config.Telegram.WhitelistEnabled = true
				f.deps.Config.Telegram.ChatWhitelist = tt.whitelist
			}
			if tt.optedOut {
				if _, err := f.store.SetOptOut(ctx, database.IncomingUser{APIID: testUser.ID, FirstName: testUser.FirstName}, true); err != nil {
					t.Fatalf("SetOptOut() error = %v", err)
				}
			}

			if got := authorize(ctx, f.deps, f.sender, &models.Update{Message: tt.msg}); got != tt.want {
				t.Fatalf("authorize() = %v, want %v", got, tt.want)
			}
			texts := f.sender.texts()
			if tt.wantText == "" && len(texts) != 0 {
				t.Errorf("sent = %q, want nothing", texts)
			}
			if tt.wantText != "" && (len(texts) != 1 || texts[0] != tt.wantText) {
				t.Errorf("sent = %q, want %q", texts, tt.wantText)
			}
			if stickers := f.sender.stickers(); tt.wantSticker != "" && (len(stickers) != 1 || stickers[0] != tt.wantSticker) {
				t.Errorf("stickers = %q, want %q", stickers, tt.wantSticker)
			}
		})
	}
}

func TestSummarizeHandler(t *testing.T) {
	t.Parallel()

	admission := &engine.Admission{SummaryID: 4, Token: "tok", Style: database.SummaryStyleNice, MessageIDs: []int64{1}}

	tests := []struct {
		name          string
		admitErr      error
		enqueueErr    error
		wantTexts     []string
		wantJob       bool
		wantAbandoned bool
	}{
		{name: "queued", wantJob: true},
		{name: "already running", admitErr: engine.ErrAlreadyRunning, wantTexts: []string{"still running"}},
		{name: "no history", admitErr: engine.ErrNoHistory, wantTexts: []string{"nothing yet"}},
		{name: "store failure", admitErr: errors.New("locked"), wantTexts: []string{"failed"}},
		{name: "queue full", enqueueErr: jobs.ErrQueueFull, wantTexts: []string{"busy"}, wantAbandoned: true},
		{name: "queue closed", enqueueErr: jobs.ErrClosed, wantTexts: []string{"failed"}, wantAbandoned: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			f.summarizer.adm = admission
			f.summarizer.err = tt.admitErr
			f.jobs.err = tt.enqueueErr

			cmd := message(7, "/summarize_nicely")
			if _, err := ingest(ctx, f.deps, cmd); err != nil {
				t.Fatalf("ingest() error = %v", err)
			}
			summarizeHandler{deps: f.deps, style: database.SummaryStyleNice}.handle(ctx, f.sender, &models.Update{Message: cmd})

			if f.summarizer.gotStyle != database.SummaryStyleNice || f.summarizer.gotChat == 0 {
				t.Errorf("admitted chat %d style %q", f.summarizer.gotChat, f.summarizer.gotStyle)
			}
			if got := f.sender.texts(); strings.Join(got, "|") != strings.Join(tt.wantTexts, "|") {
				t.Errorf("sent = %q, want %q", got, tt.wantTexts)
			}
			if got := len(f.summarizer.abandoned) == 1; got != tt.wantAbandoned {
				t.Errorf("abandoned = %v, want %v", got, tt.wantAbandoned)
			}
			if got := len(f.jobs.jobs) == 1; got != tt.wantJob {
				t.Fatalf("job queued = %v, want %v", got, tt.wantJob)
			}
			if !tt.wantJob {
				return
			}
			var p jobs.SummarizePayload
			if err := f.jobs.jobs[0].Decode(&p); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if p.Token != "tok" || p.SummaryID != 4 || p.ChatAPIID != testChatID || p.RequestAPIID != 7 {
				t.Errorf("payload = %+v", p)
			}
		})
	}
}

func TestSummarizeHandlerUnknownChat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	summarizeHandler{deps: f.deps, style: database.SummaryStyleDefault}.handle(context.Background(), f.sender, &models.Update{Message: message(1, "/summarize")})

	if got := f.sender.texts(); len(got) != 1 || got[0] != "nothing yet" {
		t.Errorf("sent = %q, want no history notice", got)
	}
	if f.summarizer.gotChat != 0 {
		t.Error("admission attempted for unknown chat")
	}
}

func TestTranslateHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		msg         *models.Message
		wantUsage   bool
		wantLang    string
		wantText    string
		wantReplyTo int
	}{
		{name: "text after command", msg: message(3, "/translate hola amigo"), wantLang: "english", wantText: "hola amigo", wantReplyTo: 3},
		{name: "language and text", msg: message(3, "/translate Polish hi there"), wantLang: "polish", wantText: "hi there", wantReplyTo: 3},
		{
			name:        "replied message",
			msg:         &models.Message{ID: 4, Chat: testGroup, From: testUser, Text: "/translate french", ReplyToMessage: &models.Message{ID: 2, Text: "good morning"}},
			wantLang:    "french",
			wantText:    "good morning",
			wantReplyTo: 2,
		},
		{name: "nothing to translate", msg: message(3, "/translate"), wantUsage: true},
		{name: "language only", msg: message(3, "/translate polish"), wantUsage: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			translateHandler{f.deps}.handle(context.Background(), f.sender, &models.Update{Message: tt.msg})

			if tt.wantUsage {
				got := f.sender.texts()
				if len(got) != 1 || got[0] != "usage: english, polish, french" {
					t.Errorf("sent = %q, want usage", got)
				}
				if len(f.jobs.jobs) != 0 {
					t.Error("job queued for empty input")
				}
				return
			}
			if len(f.jobs.jobs) != 1 {
				t.Fatalf("queued %d jobs, want 1", len(f.jobs.jobs))
			}
			var p jobs.TranslatePayload
			if err := f.jobs.jobs[0].Decode(&p); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if p.Language != tt.wantLang || p.Text != tt.wantText || p.ReplyToAPIID != tt.wantReplyTo || p.ChatAPIID != testChatID {
				t.Errorf("payload = %+v", p)
			}
		})
	}
}

func TestStatsHandler(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	h := statsHandler{f.deps}

	h.handle(ctx, f.sender, &models.Update{Message: message(1, "/chat_stats")})
	if got := f.sender.texts(); len(got) != 1 || got[0] != "no stats" {
		t.Fatalf("sent = %q, want empty stats notice", got)
	}

	for i := range 3 {
		if _, err := ingest(ctx, f.deps, message(10+i, "woof")); err != nil {
			t.Fatalf("ingest() error = %v", err)
		}
	}
	h.handle(ctx, f.sender, &models.Update{Message: message(20, "/chat_stats")})

	got := f.sender.texts()
	if len(got) != 2 {
		t.Fatalf("sent %d messages, want 2", len(got))
	}
	for _, want := range []string{"Messages seen: 3", "Messages stored: 3 (100.0%)", "1. Ana: 3"} {
		if !strings.Contains(got[1], want) {
			t.Errorf("stats %q missing %q", got[1], want)
		}
	}

	chat, err := f.store.GetChatByAPIID(ctx, testGroup.ID)
	if err != nil {
		t.Fatalf("GetChatByAPIID() error = %v", err)
	}
	last, err := f.store.QueryLastN(ctx, chat.ID, 1)
	if err != nil || len(last) != 1 {
		t.Fatalf("QueryLastN() = %v, %v", last, err)
	}
	if last[0].APIID != database.BotMessageAPIID || last[0].Text != got[1] {
		t.Errorf("last stored message = %+v, want stats as bot output", last[0])
	}
}

func TestOptOutHandler(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for i := range 2 {
		if _, err := ingest(ctx, f.deps, message(10+i, "remember me")); err != nil {
			t.Fatalf("ingest() error = %v", err)
		}
	}

	optOutHandler{deps: f.deps, optOut: true}.handle(ctx, f.sender, &models.Update{Message: message(12, "/"+CommandOptOutConfirm)})
	optedOut, err := f.store.IsOptedOut(ctx, testUser.ID)
	if err != nil || !optedOut {
		t.Fatalf("IsOptedOut() = %v, %v, want true", optedOut, err)
	}
	if got := f.sender.texts(); len(got) != 1 || got[0] != "deleted 2" {
		t.Errorf("sent = %q, want deletion count", got)
	}

	if stored, err := ingest(ctx, f.deps, message(13, "ignored")); err != nil || stored != nil {
		t.Errorf("ingest() after opt-out = %v, %v, want skipped", stored, err)
	}

	optOutHandler{deps: f.deps, optOut: false}.handle(ctx, f.sender, &models.Update{Message: message(14, "/"+CommandOptIn)})
	optedOut, err = f.store.IsOptedOut(ctx, testUser.ID)
	if err != nil || optedOut {
		t.Fatalf("IsOptedOut() = %v, %v, want false", optedOut, err)
	}
	if got := f.sender.texts(); got[len(got)-1] != "welcome back" {
		t.Errorf("last sent = %q, want opt-in notice", got[len(got)-1])
	}
}

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	handlers := RegisterAllCommands(f.deps)
	for _, name := range []string{
		CommandStart, CommandHelp, CommandSummarize, CommandSummarizeNicely, CommandVibeCheck,
		CommandTranslate, CommandChatStats, CommandOptOut, CommandOptOutConfirm, CommandOptIn,
	} {
		h, ok := handlers["/"+name]
		if !ok {
			t.Errorf("command %q not registered", name)
			continue
		}
		if h.Handler == nil || h.MatchFunc == nil {
			t.Errorf("command %q missing handler or matcher", name)
		}
		if !h.MatchFunc(&models.Update{Message: message(1, "/"+name+"@dogbot")}) {
			t.Errorf("command %q does not match its own text", name)
		}
		if h.MatchFunc(&models.Update{Message: message(1, "/"+name+"@otherbot")}) {
			t.Errorf("command %q matches another bot", name)
		}
	}
}

func TestWithBotName(t *testing.T) {
	t.Parallel()

	if got := withBotName("hi @botname", "dogbot"); got != "hi @dogbot" {
		t.Errorf("withBotName() = %q", got)
	}
	if got := withBotName("hi @botname", ""); got != "hi @botname" {
		t.Errorf("withBotName() without username = %q", got)
	}
}
