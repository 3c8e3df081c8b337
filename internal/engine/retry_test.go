package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/engine"
	"github.com/edgard/dogbot/internal/llm"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func window(n int) []database.Message {
	msgs := make([]database.Message, n)
	for i := range msgs {
		msgs[i] = database.Message{ID: int64(i + 1), APIID: int64(100 + i)}
	}
	return msgs
}

func TestRunWithShrinkingContext(t *testing.T) {
	t.Parallel()

	tooLarge := llm.NewFailure(llm.KindTooLarge, errors.New("payload"))

	tests := []struct {
		name      string
		size      int
		results   []error
		wantSizes []int
		wantText  string
		wantFatal bool
	}{
		{
			name:      "first attempt succeeds",
			size:      200,
			results:   []error{nil},
			wantSizes: []int{200},
			wantText:  "ok",
		},
		{
			name:      "too large twice",
			size:      200,
			results:   []error{tooLarge, tooLarge, nil},
			wantSizes: []int{200, 150, 100},
			wantText:  "ok",
		},
		{
			name:      "blank output retries",
			size:      100,
			results:   []error{llm.NewFailure(llm.KindBlank, nil), nil},
			wantSizes: []int{100, 75},
			wantText:  "ok",
		},
		{
			name:      "exhausted after four attempts",
			size:      200,
			results:   []error{tooLarge, tooLarge, tooLarge, tooLarge, nil},
			wantSizes: []int{200, 150, 100, 50},
			wantFatal: true,
		},
		{
			name:      "transport failure is permanent",
			size:      200,
			results:   []error{errors.New("connection reset"), nil},
			wantSizes: []int{200},
			wantFatal: true,
		},
		{
			name:      "odd sizes round down",
			size:      7,
			results:   []error{tooLarge, tooLarge, tooLarge, nil},
			wantSizes: []int{7, 5, 3, 1},
			wantText:  "ok",
		},
		{
			name:      "window shrinks to nothing",
			size:      2,
			results:   []error{tooLarge, tooLarge, tooLarge, nil},
			wantSizes: []int{2, 1, 1},
			wantFatal: true,
		},
		{
			name:      "empty window",
			size:      0,
			wantFatal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			full := window(tt.size)
			var sizes []int
			invoke := func(_ context.Context, w []database.Message) (string, error) {
				sizes = append(sizes, len(w))
				if len(w) > 0 && w[len(w)-1].ID != full[len(full)-1].ID {
					t.Errorf("attempt %d dropped the newest message", len(sizes))
				}
				err := tt.results[len(sizes)-1]
				if err != nil {
					return "", err
				}
				return " ok\n", nil
			}

			got, err := engine.RunWithShrinkingContext(context.Background(), full, 4, invoke, discard)
			if !equalInts(sizes, tt.wantSizes) {
				t.Errorf("attempt sizes = %v, want %v", sizes, tt.wantSizes)
			}
			if tt.wantFatal {
				if !engine.IsFatal(err) || !errors.Is(err, engine.ErrPermanentFailure) {
					t.Errorf("error = %v, want permanent failure", err)
				}
				return
			}
			if err != nil || got != tt.wantText {
				t.Errorf("RunWithShrinkingContext() = %q, %v; want %q", got, err, tt.wantText)
			}
		})
	}
}

func TestRunWithShrinkingContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	invoke := func(ctx context.Context, _ []database.Message) (string, error) {
		calls++
		cancel()
		return "", llm.NewFailure(llm.KindTooLarge, ctx.Err())
	}

	_, err := engine.RunWithShrinkingContext(ctx, window(10), 4, invoke, discard)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if engine.VerdictOf(err) != 0 {
		t.Errorf("cancellation carries verdict %v", engine.VerdictOf(err))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
