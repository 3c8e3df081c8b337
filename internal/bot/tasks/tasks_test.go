package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edgard/dogbot/internal/config"
)

type fakeStore struct {
	messageCutoff time.Time
	summaryCutoff time.Time
	maintained    bool
	err           error
}

func (f *fakeStore) DeleteMessagesOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.messageCutoff = cutoff
	return 12, f.err
}

func (f *fakeStore) DeleteSummariesOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.summaryCutoff = cutoff
	return 3, nil
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error {
	f.maintained = true
	return f.err
}

func testDeps(store Store, now time.Time) TaskDeps {
	return TaskDeps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		Config: &config.Config{Purge: config.PurgeConfig{RetainMessages: 48 * time.Hour, RetainSummaries: 24 * time.Hour}},
		Now:    func() time.Time { return now },
	}
}

func TestRunPurge(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 6, 4, 0, 0, 0, time.UTC)
	store := &fakeStore{}

	res, err := RunPurge(context.Background(), testDeps(store, now))
	if err != nil {
		t.Fatalf("RunPurge() error = %v", err)
	}
	if res.Messages != 12 || res.Summaries != 3 {
		t.Errorf("RunPurge() = %+v", res)
	}
	if want := now.Add(-48 * time.Hour); !store.messageCutoff.Equal(want) {
		t.Errorf("message cutoff = %v, want %v", store.messageCutoff, want)
	}
	if want := now.Add(-24 * time.Hour); !store.summaryCutoff.Equal(want) {
		t.Errorf("summary cutoff = %v, want %v", store.summaryCutoff, want)
	}
}

func TestRunPurgeError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("locked")}
	if _, err := RunPurge(context.Background(), testDeps(store, time.Now())); err == nil {
		t.Fatal("RunPurge() error = nil, want error")
	}
	if !store.summaryCutoff.IsZero() {
		t.Error("summaries purged after message purge failed")
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	tasks := RegisterAllTasks(testDeps(store, time.Now()))

	for _, name := range []string{config.TaskPurgeOldMessages, config.TaskSQLMaintenance} {
		if tasks[name] == nil {
			t.Fatalf("task %q not registered", name)
		}
	}
	if err := tasks[config.TaskSQLMaintenance](context.Background()); err != nil {
		t.Fatalf("sql maintenance error = %v", err)
	}
	if !store.maintained {
		t.Error("maintenance not run")
	}
}

func TestPurgeTaskError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("locked")}
	purge := RegisterAllTasks(testDeps(store, time.Now()))[config.TaskPurgeOldMessages]
	if err := purge(context.Background()); err == nil {
		t.Fatal("purge task error = nil, want error")
	}
}
