package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "plain error", err: errors.New("dial tcp: timeout"), want: KindTransport},
		{name: "payload too large", err: &genai.APIError{Code: 413, Message: "too big"}, want: KindTooLarge},
		{name: "unprocessable", err: &genai.APIError{Code: 422}, want: KindTooLarge},
		{
			name: "token limit",
			err:  &genai.APIError{Code: 400, Message: "The input token count (1200000) exceeds the maximum"},
			want: KindTooLarge,
		},
		{name: "bad request", err: &genai.APIError{Code: 400, Message: "invalid model"}, want: KindTransport},
		{name: "unauthorized", err: &genai.APIError{Code: 401}, want: KindTransport},
		{name: "wrapped", err: fmt.Errorf("call failed: %w", &genai.APIError{Code: 413}), want: KindTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	textResp := func(text string) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}}}
	}

	tests := []struct {
		name     string
		resp     *genai.GenerateContentResponse
		want     string
		wantKind Kind
		wantErr  bool
	}{
		{name: "text", resp: textResp("  hello  "), want: "hello"},
		{name: "whitespace only", resp: textResp(" \n "), wantKind: KindBlank, wantErr: true},
		{name: "nil", resp: nil, wantKind: KindBlank, wantErr: true},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, wantKind: KindBlank, wantErr: true},
		{
			name: "blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			wantKind: KindBlank,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := extractText(tt.resp)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractText() = %q, want error", got)
				}
				if KindOf(err) != tt.wantKind {
					t.Errorf("KindOf() = %v, want %v", KindOf(err), tt.wantKind)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("extractText() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	if KindOf(fmt.Errorf("wrapped: %w", NewFailure(KindTooLarge, nil))) != KindTooLarge {
		t.Error("KindOf lost the kind through wrapping")
	}
	if KindOf(errors.New("other")) != KindTransport {
		t.Error("unclassified errors should be transport failures")
	}
	if !strings.Contains(NewFailure(KindBlank, errors.New("empty")).Error(), "blank") {
		t.Error("Failure.Error() should mention its kind")
	}
}

func TestInvokerFunc(t *testing.T) {
	t.Parallel()

	var got Request
	inv := InvokerFunc(func(_ context.Context, req Request) (string, error) {
		got = req
		return "ok", nil
	})
	out, err := inv.Invoke(context.Background(), Request{UserPrompt: "hi", Params: DefaultParams})
	if err != nil || out != "ok" || got.UserPrompt != "hi" || got.Params.MaxTokens != 512 {
		t.Errorf("Invoke() = %q, %v with %+v", out, err, got)
	}
}

func TestLoadPrompts(t *testing.T) {
	t.Parallel()

	builtin, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("LoadPrompts(\"\") error = %v", err)
	}
	for _, name := range AllPrompts {
		if builtin.Get(name) == "" {
			t.Errorf("built-in prompt %s is empty", name)
		}
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vibe_check.txt"), []byte("  custom vibes \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	custom, err := LoadPrompts(dir)
	if err != nil {
		t.Fatalf("LoadPrompts(dir) error = %v", err)
	}
	if custom.Get(PromptVibeCheck) != "custom vibes" {
		t.Errorf("override = %q", custom.Get(PromptVibeCheck))
	}
	if custom.Get(PromptSummarize) != builtin.Get(PromptSummarize) {
		t.Error("missing override did not fall back to the built-in prompt")
	}

	reply := builtin.Reply("Dog", "dogbot")
	if !strings.Contains(reply, "Dog (@dogbot)") || strings.Contains(reply, "{bot_") {
		t.Errorf("Reply() placeholders not replaced: %q", reply)
	}
}

func TestLoadPromptsRejectsBlank(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "translate.txt"), []byte("   "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrompts(dir); err == nil {
		t.Error("LoadPrompts() accepted a blank prompt")
	}
}
