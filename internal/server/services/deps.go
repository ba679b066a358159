// Package services contains server-side business logic: credential checks,
// token issuance, and module administration.
package services

import (
	"context"

	"github.com/dmitrijs2005/modauth/internal/logging"
	"github.com/dmitrijs2005/modauth/internal/server/auth"
	"github.com/dmitrijs2005/modauth/internal/server/events"
	"github.com/dmitrijs2005/modauth/internal/server/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("modauth/services")

// deps holds collaborators shared by the services. Every field has a
// working default so tests only set what they exercise.
type deps struct {
	clock     auth.Clock
	limiter   ratelimit.LoginLimiter
	publisher events.Publisher
	logger    logging.Logger
}

type Option func(*deps)

func WithClock(c auth.Clock) Option {
	return func(d *deps) { d.clock = c }
}

func WithLimiter(l ratelimit.LoginLimiter) Option {
	return func(d *deps) { d.limiter = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(d *deps) { d.publisher = p }
}

func WithLogger(l logging.Logger) Option {
	return func(d *deps) { d.logger = l }
}

func newDeps(opts []Option) deps {
	d := deps{
		clock:     auth.SystemClock{},
		limiter:   ratelimit.NopLimiter{},
		publisher: events.NopPublisher{},
		logger:    logging.NopLogger{},
	}
	for _, o := range opts {
		o(&d)
	}
	d.logger = d.logger.With("module", "services")
	return d
}

// publish sends an event; failures are logged only.
func (d *deps) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = d.clock.Now()
	if err := d.publisher.Publish(ctx, e); err != nil {
		d.logger.Warn(ctx, "event publish failed", "type", e.Type, "error", err)
	}
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
