package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/metrics"
	"github.com/sandevgo/recomate/pkg/retry"
	"github.com/sandevgo/recomate/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

type fetchFunc func(ctx context.Context) ([]core.Candidate, error)

// run executes one bounded, retried agent call and turns every failure into
// an explicit status. A failed call never carries candidates.
func run(ctx context.Context, name string, timeout time.Duration, retrier *retry.Retrier, fetch fetchFunc) (res core.RetrievalResult) {
	start := time.Now()
	res = core.RetrievalResult{Agent: name, Status: core.AgentOK}

	ctx, span := tracing.StartAgentSpan(ctx, name)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = core.RetrievalResult{
				Agent:  name,
				Status: core.AgentUnavailable,
				Err:    fmt.Errorf("%w: panic: %v", core.ErrAgentUnavailable, r),
			}
		}
		res.Elapsed = time.Since(start)

		span.SetAttributes(
			attribute.String("agent.status", string(res.Status)),
			attribute.Int("agent.candidates", len(res.Candidates)),
		)
		tracing.Fail(span, res.Err)
		metrics.AgentCalls.WithLabelValues(name, string(res.Status)).Inc()
		metrics.AgentDuration.WithLabelValues(name).Observe(res.Elapsed.Seconds())

		if !res.Available() {
			log.FromCtx(ctx).Warn().
				Err(res.Err).
				Str("agent", name).
				Str("status", string(res.Status)).
				Dur("elapsed", res.Elapsed).
				Msg("retrieval agent unavailable")
		}
	}()

	var candidates []core.Candidate
	err := retrier.Do(ctx, func() error {
		var err error
		candidates, err = fetch(ctx)
		return err
	})

	switch {
	case err == nil:
		res.Candidates = candidates
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		res.Status = core.AgentTimeout
		res.Err = fmt.Errorf("%w: %s: %v", core.ErrAgentUnavailable, name, err)
	default:
		res.Status = core.AgentUnavailable
		res.Err = fmt.Errorf("%w: %s: %v", core.ErrAgentUnavailable, name, err)
	}
	return res
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
