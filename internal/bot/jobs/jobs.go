// Package jobs moves LLM work off the update handlers. Handlers enqueue a
// Job; a worker pool (in process, or asynq over redis) hands it to the Runner.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edgard/dogbot/internal/engine"
)

// Kind names a job type. It is also the asynq task type.
type Kind string

const (
	KindSummarize Kind = "summarize"
	KindReply     Kind = "reply"
	KindTranslate Kind = "translate"
)

// ErrQueueFull is returned by Enqueue when no worker can take the job.
var ErrQueueFull = errors.New("job queue is full")

// ErrClosed is returned by Enqueue after the pool stopped.
var ErrClosed = errors.New("job queue is closed")

// Job is one unit of queued work with a JSON payload.
type Job struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// SummarizePayload carries an admission and where to post the result.
type SummarizePayload struct {
	engine.Admission
	ChatAPIID    int64 `json:"chat_api_id"`
	RequestAPIID int   `json:"request_api_id"`
}

// ReplyPayload identifies the message to answer.
type ReplyPayload struct {
	ChatID       int64 `json:"chat_id"`
	ChatAPIID    int64 `json:"chat_api_id"`
	MessageID    int64 `json:"message_id"`
	MessageAPIID int   `json:"message_api_id"`
}

// TranslatePayload is a translation request.
type TranslatePayload struct {
	ChatAPIID    int64  `json:"chat_api_id"`
	ReplyToAPIID int    `json:"reply_to_api_id"`
	Text         string `json:"text"`
	Language     string `json:"language"`
}

// Dispatcher queues jobs for asynchronous execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler executes jobs.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// NewJob encodes payload into a job of the given kind.
func NewJob(kind Kind, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return Job{ID: uuid.NewString(), Kind: kind, Payload: data}, nil
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s job %s: %w", j.Kind, j.ID, err)
	}
	return nil
}
