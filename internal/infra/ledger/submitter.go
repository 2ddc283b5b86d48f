package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/governing/metrics"
)

// RetryConfig defines the submit retry bound.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" env:"GOVERNOR_SUBMIT_ATTEMPTS"`
	Delay    time.Duration `yaml:"delay"    env:"GOVERNOR_SUBMIT_DELAY"`
}

// DefaultRetryConfig: 3 attempts, 2s apart.
var DefaultRetryConfig = RetryConfig{
	Attempts: 3,
	Delay:    2 * time.Second,
}

// RetryingSubmitter retries transient submit failures a fixed number of times
// with a fixed delay. Deterministic failures are returned after one attempt.
type RetryingSubmitter struct {
	next   Submitter
	cfg    RetryConfig
	log    *slog.Logger
	tracer trace.Tracer
}

// NewRetryingSubmitter wraps next with bounded retry.
func NewRetryingSubmitter(next Submitter, cfg RetryConfig) *RetryingSubmitter {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Millisecond
	}
	return &RetryingSubmitter{
		next:   next,
		cfg:    cfg,
		log:    slog.Default().With("component", "submitter"),
		tracer: otel.Tracer("github.com/vietddude/governor/internal/infra/ledger"),
	}
}

// Submit sends call, retrying transient failures.
func (s *RetryingSubmitter) Submit(ctx context.Context, call domain.Call) (*domain.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "governor.submit", trace.WithAttributes(
		attribute.String("call", string(call.Kind())),
		attribute.String("game_id", call.Game().String()),
	))
	defer span.End()

	var (
		receipt  *domain.Receipt
		attempts int
	)

	backoff := retry.WithMaxRetries(uint64(s.cfg.Attempts-1), retry.NewConstant(s.cfg.Delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		r, err := s.next.Submit(ctx, call)
		if err == nil {
			receipt = r
			metrics.SubmitAttemptsTotal.WithLabelValues(string(call.Kind()), "ok").Inc()
			return nil
		}

		err = Wrap(err)
		if IsDeterministic(err) {
			metrics.SubmitAttemptsTotal.WithLabelValues(string(call.Kind()), "deterministic").Inc()
			return err
		}

		metrics.SubmitAttemptsTotal.WithLabelValues(string(call.Kind()), "transient").Inc()
		s.log.Warn("Submit failed, will retry",
			"call", call.Kind(),
			"game", call.Game(),
			"attempt", attempts,
			"max_attempts", s.cfg.Attempts,
			"error", err,
		)
		return retry.RetryableError(err)
	})

	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("submit %s for game %s after %d attempt(s): %w",
			call.Kind(), call.Game(), attempts, err)
	}
	return receipt, nil
}

// Attempts returns the configured attempt bound.
func (s *RetryingSubmitter) Attempts() int {
	return s.cfg.Attempts
}
