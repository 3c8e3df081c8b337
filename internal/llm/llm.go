// Package llm defines the language model invoker used by the engine, its
// failure taxonomy, and the prompt set loaded at startup.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies why an invocation produced no usable text.
type Kind int

const (
	// KindTransport covers network, auth, quota and other provider errors.
	KindTransport Kind = iota
	// KindTooLarge means the prompt exceeded what the model accepts.
	KindTooLarge
	// KindBlank means the model answered with no usable text.
	KindBlank
)

func (k Kind) String() string {
	switch k {
	case KindTooLarge:
		return "too_large"
	case KindBlank:
		return "blank"
	default:
		return "transport"
	}
}

// Failure is the classified error returned by an Invoker.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "llm " + f.Kind.String()
	}
	return fmt.Sprintf("llm %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure wraps err with a failure kind.
func NewFailure(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// KindOf returns the failure kind carried by err. Errors that are not a
// Failure count as transport failures.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindTransport
}

// Params are the sampling parameters of one invocation.
type Params struct {
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultParams apply when an operation does not override them.
var DefaultParams = Params{MaxTokens: 512, Temperature: 1.0}

// Request is one system+user prompt pair.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Params       Params
}

// Invoker runs a single completion. Implementations return non-blank text or
// a *Failure; context errors are returned unwrapped.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
