package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marples/pdfinsight/internal/composer"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = time.Second
)

// Generator produces text from a prompt. *gemini.Client satisfies this.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result is the outcome of one analysis. Text is always displayable: on
// success it is the model response, on failure it is a human-readable error
// string embedding the last attempt's failure. Attempts counts remote calls
// actually made.
type Result struct {
	Text     string
	Prompt   string
	Attempts int
	Failed   bool
}

// Analyzer runs analysis requests against a generative backend with bounded
// retries and exponential backoff between attempts. Attempts are strictly
// sequential. Stateless across calls apart from construction-time wiring.
type Analyzer struct {
	gen         Generator
	prompts     *composer.Builder
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMaxAttempts sets the attempt budget (minimum 1).
func WithMaxAttempts(n int) Option {
	return func(a *Analyzer) {
		if n >= 1 {
			a.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the delay before the second attempt; it doubles for
// each subsequent one.
func WithBaseBackoff(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.baseBackoff = d
		}
	}
}

// withSleep replaces the backoff sleep (tests).
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Analyzer) { a.sleep = fn }
}

// New creates an Analyzer with the default attempt budget (3) and base
// backoff (1s).
func New(gen Generator, prompts *composer.Builder, opts ...Option) *Analyzer {
	a := &Analyzer{
		gen:         gen,
		prompts:     prompts,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze composes a prompt from the free-form instruction and document text
// and runs it against the backend. It never returns an error: retry
// exhaustion (or context cancellation during a backoff wait) degrades to a
// Result whose Text describes the failure.
func (a *Analyzer) Analyze(ctx context.Context, instruction, docText string) Result {
	prompt := a.prompts.Build(instruction, docText)
	res := Result{Prompt: prompt}

	var lastErr error
	for attempt := range a.maxAttempts {
		text, err := a.gen.Generate(ctx, prompt)
		res.Attempts = attempt + 1
		if err == nil {
			res.Text = text
			return res
		}

		lastErr = err
		a.logger.Warn("generation attempt failed",
			"attempt", attempt+1,
			"max_attempts", a.maxAttempts,
			"error", err,
		)

		if attempt == a.maxAttempts-1 {
			break
		}
		backoff := a.baseBackoff << attempt
		if err := a.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
	}

	res.Failed = true
	res.Text = fmt.Sprintf("Error processing request: %v", lastErr)
	return res
}

// AnalyzeIntent runs one of the fixed named analysis intents. The returned
// error is non-nil only for an intent outside the fixed set; the remote
// retry/failure contract is identical to Analyze.
func (a *Analyzer) AnalyzeIntent(ctx context.Context, intent, docText string) (Result, error) {
	instruction, ok := composer.InstructionFor(intent)
	if !ok {
		return Result{}, fmt.Errorf("unknown analysis intent %q", intent)
	}
	return a.Analyze(ctx, instruction, docText), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
