package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/dogbot/internal/config"
)

type geminiInvoker struct {
	genaiClient  *genai.Client
	log          *slog.Logger
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewGeminiInvoker creates an Invoker backed by the Gemini API.
func NewGeminiInvoker(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (Invoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_invoker")
	logger.Info("Gemini client initialized successfully", "model", cfg.Model)
	return &geminiInvoker{
		genaiClient:  gi,
		log:          logger,
		defaultModel: cfg.Model,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *geminiInvoker) Invoke(ctx context.Context, req Request) (string, error) {
	model := req.Params.Model
	if model == "" {
		model = c.defaultModel
	}
	temperature := req.Params.Temperature

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: req.Params.MaxTokens,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}

	c.log.DebugContext(ctx, "Invoking model", "model", model, "prompt_bytes", len(req.UserPrompt))
	resp, err := c.generateContentWithRetries(ctx, model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", NewFailure(classifyError(err), err)
	}

	text, err := extractText(resp)
	if err != nil {
		c.log.WarnContext(ctx, "Gemini returned no usable text", "model", model, "error", err)
		return "", err
	}
	return text, nil
}

func (c *geminiInvoker) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		if apiErr, ok := asAPIError(err); ok && isRetriableCode(apiErr.Code) && i < c.maxRetries {
			c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", apiErr.Code)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.log.ErrorContext(ctx, "Gemini API call failed", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// asAPIError finds a genai.APIError in the chain; the SDK returns it by value
// while callers may wrap a pointer.
func asAPIError(err error) (genai.APIError, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val, true
	}
	return genai.APIError{}, false
}

func isRetriableCode(code int) bool {
	return code == http.StatusInternalServerError || code == http.StatusServiceUnavailable
}

// classifyError maps provider errors onto the failure taxonomy. Only size
// rejections are worth retrying with a smaller prompt.
func classifyError(err error) Kind {
	apiErr, ok := asAPIError(err)
	if !ok {
		return KindTransport
	}

	switch apiErr.Code {
	case http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return KindTooLarge
	case http.StatusBadRequest:
		msg := strings.ToLower(apiErr.Message)
		if strings.Contains(msg, "token") || strings.Contains(msg, "too long") || strings.Contains(msg, "too large") {
			return KindTooLarge
		}
	}
	return KindTransport
}

// extractText returns the response text, or a blank failure when the prompt
// was blocked or the model produced nothing.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", NewFailure(KindBlank, errors.New("empty response"))
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		return "", NewFailure(KindBlank, fmt.Errorf("blocked by safety filter: %s", reasonMsg))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		return "", NewFailure(KindBlank, fmt.Errorf("no content, finish reason: %s", finishReason))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", NewFailure(KindBlank, errors.New("empty text"))
	}
	return text, nil
}
