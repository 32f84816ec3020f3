package ai

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"

	"golang.org/x/time/rate"
)

// DefaultMaxWait bounds the rate limit wait when no MaxWait is configured.
const DefaultMaxWait = 2 * time.Minute

// ResponseValidator is implemented by structured answers that can check
// whether the model kept to the requested shape. A decoded answer whose
// Validate fails is treated as a parse failure.
type ResponseValidator interface {
	Validate() error
}

// ResilientClient wraps a GraphAIClient with a shared rate limit, a per
// call timeout and a bounded retry. It is safe for concurrent use; all
// callers share the same limiter.
//
// A ResilientClient should be created using NewResilientClient.
type ResilientClient struct {
	client      GraphAIClient
	limiter     *rate.Limiter
	maxWait     time.Duration
	timeout     time.Duration
	maxAttempts int
	maxTokens   int

	calls       atomic.Int64
	failures    atomic.Int64
	rateLimited atomic.Int64
}

// NewResilientClientParams defines the policy of a ResilientClient.
//
// RequestsPerMinute <= 0 disables rate limiting. MaxWait bounds the time a
// call waits for a rate limit token (DefaultMaxWait when <= 0). Retries is the number of additional
// attempts after the first one failed.
type NewResilientClientParams struct {
	Client            GraphAIClient
	RequestsPerMinute int
	Burst             int
	MaxWait           time.Duration
	Timeout           time.Duration
	Retries           int
	MaxTokens         int
}

// ResilienceStats counts remote calls made through a ResilientClient.
type ResilienceStats struct {
	Calls       int64 `json:"calls"`
	Failures    int64 `json:"failures"`
	RateLimited int64 `json:"rate_limited"`
}

func NewResilientClient(params NewResilientClientParams) *ResilientClient {
	var limiter *rate.Limiter
	if params.RequestsPerMinute > 0 {
		burst := params.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(params.RequestsPerMinute)), burst)
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxWait := params.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	retries := params.Retries
	if retries < 0 {
		retries = 0
	}

	return &ResilientClient{
		client:      params.Client,
		limiter:     limiter,
		maxWait:     maxWait,
		timeout:     timeout,
		maxAttempts: retries + 1,
		maxTokens:   params.MaxTokens,
	}
}

// CompleteJSON sends prompt to the model and decodes the structured answer
// into out. Each attempt waits for the rate limiter, then runs under its own
// timeout. Failures are retried up to the configured count; the returned
// error wraps ErrRateLimited, ErrParse or ErrDelegate, or is the context
// error when ctx itself is done.
//
// out must be a pointer. It is reset before every attempt, and when it
// implements ResponseValidator an answer failing Validate is retried like
// any other parse failure.
func (c *ResilientClient) CompleteJSON(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	if c.maxTokens > 0 {
		opts = append([]GenerateOption{WithMaxTokens(c.maxTokens)}, opts...)
	}

	attempt := 0
	err := util.RetryErrWithContext(ctx, c.maxAttempts, func(ctx context.Context) error {
		attempt++
		err := c.attempt(ctx, name, description, prompt, out, opts...)
		if err == nil || ctx.Err() != nil {
			return err
		}
		c.failures.Add(1)
		logger.Debug("[AI] Model call failed", "request", name, "attempt", attempt, "err", err)
		return err
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func resetOutput(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().SetZero()
	}
}

func (c *ResilientClient) attempt(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resetOutput(out)
	c.calls.Add(1)
	err := c.client.GenerateCompletionWithFormat(callCtx, name, description, prompt, out, opts...)
	if err == nil {
		if v, ok := out.(ResponseValidator); ok {
			if verr := v.Validate(); verr != nil {
				return fmt.Errorf("%w: %v", ErrParse, verr)
			}
		}
		return nil
	}
	if errors.Is(err, ErrParse) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDelegate, err)
}

func (c *ResilientClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()

	if err := c.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.rateLimited.Add(1)
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// Stats returns the call counters accumulated so far.
func (c *ResilientClient) Stats() ResilienceStats {
	return ResilienceStats{
		Calls:       c.calls.Load(),
		Failures:    c.failures.Load(),
		RateLimited: c.rateLimited.Load(),
	}
}

// Metrics returns the token usage reported by the wrapped client.
func (c *ResilientClient) Metrics() ModelMetrics {
	return c.client.GetMetrics()
}
