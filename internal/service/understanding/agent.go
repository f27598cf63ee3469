package understanding

import (
	"context"
	"errors"
	"time"

	"github.com/sandevgo/recomate/internal/core"
	"github.com/sandevgo/recomate/pkg/log"
	"github.com/sandevgo/recomate/pkg/metrics"
	"github.com/sandevgo/recomate/pkg/tracing"
)

const (
	ReasonTimeout    = "timeout"
	ReasonParse      = "parse_failure"
	ReasonEmptyInput = "empty_input"
)

// Agent is the query understanding agent. With a generation model it asks
// the model and falls back to a degraded intent on failure; without one the
// rule parser's output is final.
type Agent struct {
	rules   *RuleParser
	llm     *LLMParser
	vocab   *Vocabulary
	timeout time.Duration
}

type Option func(*Agent)

// WithGenerator enables model-based parsing.
func WithGenerator(gen core.Generator) Option {
	return func(a *Agent) {
		if gen != nil {
			a.llm = NewLLMParser(gen)
		}
	}
}

func WithVocabulary(v *Vocabulary) Option {
	return func(a *Agent) { a.vocab = v }
}

func NewAgent(timeout time.Duration, opts ...Option) *Agent {
	a := &Agent{
		rules:   NewRuleParser(),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.vocab == nil {
		a.vocab = NewVocabulary(nil, 0)
	}
	return a
}

type parseResult struct {
	intent core.Intent
	err    error
}

func (a *Agent) Understand(ctx context.Context, text string, session *core.Session) core.Intent {
	ctx, span := tracing.Start(ctx, "turn.understanding")
	defer span.End()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	done := make(chan parseResult, 1)
	go func() {
		intent, err := a.parse(ctx, text)
		done <- parseResult{intent: intent, err: err}
	}()

	select {
	case <-ctx.Done():
		return a.degrade(ctx, text, ReasonTimeout, ctx.Err())
	case res := <-done:
		if res.err != nil {
			reason := ReasonParse
			if errors.Is(res.err, context.DeadlineExceeded) {
				reason = ReasonTimeout
			}
			if errors.Is(res.err, core.ErrDegradedInput) {
				reason = ReasonEmptyInput
			}
			tracing.Fail(span, res.err)
			return a.degrade(ctx, text, reason, res.err)
		}
		return resolveContinuation(res.intent, session)
	}
}

func (a *Agent) parse(ctx context.Context, text string) (core.Intent, error) {
	vocab := a.vocab.Get(ctx)
	intent := a.rules.Parse(text, vocab)
	if intent.Query == "" {
		return core.Intent{}, core.ErrDegradedInput
	}
	if a.llm == nil {
		return intent, nil
	}
	return a.llm.Parse(ctx, text, vocab, intent)
}

func (a *Agent) degrade(ctx context.Context, text, reason string, err error) core.Intent {
	metrics.DegradedIntents.WithLabelValues(reason).Inc()
	log.FromCtx(ctx).Warn().Err(err).Str("reason", reason).Msg("understanding degraded")
	return core.DegradedIntent(text, reason)
}
