// Package llm defines the model client interface and its OpenAI-compatible
// implementation. The research engine treats any generation failure as "no
// usable output" and degrades locally, so callers here get plain errors and
// decide recovery themselves.
package llm

import (
	"context"
	"fmt"
)

// Options override per-call generation parameters. Zero values mean "use the
// client's configured default".
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Client is the minimal capability the research engine needs from a model.
type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Model() string
}

// GenerationError wraps transport and protocol failures from a model call so
// callers can distinguish them from their own errors.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
