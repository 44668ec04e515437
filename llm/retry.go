package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/NateSpencerWx/melon/errors"
	"github.com/NateSpencerWx/melon/session"
	"github.com/NateSpencerWx/melon/tools"
)

// RetryPolicy wraps an operation with bounded exponential backoff. It is
// independent of any call site: the operation is a plain thunk.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64

	// sleep is replaceable in tests; nil means time.Sleep via timer.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy mirrors the configured defaults: 3 attempts, 1 s
// initial delay, doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2.0}
}

// Do runs op, retrying transient failures. Rate-limit failures and generic
// failures retry on the same schedule and differ only in the diagnostic
// printed. When all attempts fail, the last error is returned unchanged.
// ErrToolHistoryUnsupported and context cancellation are never retried:
// the first needs a different payload, not another attempt.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrToolHistoryUnsupported) || ctx.Err() != nil {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if isRateLimited(lastErr) {
			fmt.Fprintf(os.Stderr, "Rate limited (attempt %d/%d), retrying in %s...\n", attempt, attempts, delay)
		} else {
			fmt.Fprintf(os.Stderr, "Request failed (attempt %d/%d): %v. Retrying in %s...\n", attempt, attempts, lastErr, delay)
		}

		if err := p.wait(ctx, delay); err != nil {
			return lastErr
		}
		delay = time.Duration(float64(delay) * factor)
	}
	return lastErr
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRateLimited classifies an error as a rate-limit failure by inspecting
// its text. Providers disagree on error types, so text matching is the
// lowest common denominator.
func isRateLimited(err error) bool {
	text := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "429", "quota", "throttle"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// RetryingClient decorates an LLMClient with a RetryPolicy.
type RetryingClient struct {
	Inner  LLMClient
	Policy RetryPolicy
}

// NewRetryingClient wraps client so every Chat call retries per policy.
func NewRetryingClient(client LLMClient, policy RetryPolicy) *RetryingClient {
	return &RetryingClient{Inner: client, Policy: policy}
}

func (r *RetryingClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	var resp *session.Message
	err := r.Policy.Do(ctx, func() error {
		var chatErr error
		resp, chatErr = r.Inner.Chat(ctx, messages, availableTools)
		return chatErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
