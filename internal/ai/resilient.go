package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/pulsai/pulsai/internal/funnel"
	"github.com/pulsai/pulsai/internal/retry"
	"github.com/pulsai/pulsai/pkg/models"
)

// ResilientCompleter retries transient provider faults before giving up.
// Non-retryable faults (bad credentials, malformed request) fail fast.
type ResilientCompleter struct {
	inner  funnel.Completer
	config retry.Config
}

// NewResilientCompleter wraps a completer with the model retry policy.
func NewResilientCompleter(inner funnel.Completer) *ResilientCompleter {
	return &ResilientCompleter{inner: inner, config: retry.ModelConfig()}
}

func (r *ResilientCompleter) Complete(ctx context.Context, systemPrompt string, turns []funnel.Turn) (string, error) {
	var out string
	var permErr error
	err := retry.Do(ctx, r.config, "model_completion", func() error {
		var callErr error
		out, callErr = r.inner.Complete(ctx, systemPrompt, turns)
		if callErr != nil && !retry.IsRetryable(callErr) {
			// Not transient; stop the retry loop and surface it below.
			permErr = callErr
			return nil
		}
		return callErr
	})
	if permErr != nil {
		return "", permErr
	}
	if err != nil && !errors.Is(err, models.ErrModelUnavailable) {
		err = fmt.Errorf("%w: %w", models.ErrModelUnavailable, err)
	}
	return out, err
}
