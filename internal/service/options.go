package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmynk/equalsplit/internal/apperr"
	"github.com/mmynk/equalsplit/internal/events"
	"github.com/mmynk/equalsplit/internal/lock"
	"github.com/mmynk/equalsplit/internal/metrics"
	"github.com/mmynk/equalsplit/internal/models"
	"github.com/mmynk/equalsplit/internal/storage"
)

const tracerName = "github.com/mmynk/equalsplit/internal/service"

// Option customizes a service.
type Option func(*base)

// WithLocker sets the per-group write lock. Defaults to lock.NewLocal().
func WithLocker(l lock.Locker) Option {
	return func(b *base) { b.locker = l }
}

// WithPublisher sets where ledger events go. Defaults to events.Nop.
func WithPublisher(p events.Publisher) Option {
	return func(b *base) { b.publisher = p }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithClock overrides time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// base holds the collaborators shared by LedgerService and GroupService.
type base struct {
	store     storage.Store
	locker    lock.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
	tracer    trace.Tracer
}

func newBase(store storage.Store, opts []Option) base {
	b := base{
		store:     store,
		locker:    lock.NewLocal(),
		publisher: events.Nop{},
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	return b
}

// startOp opens a span for op and returns a func that closes it, records
// latency, and counts the error code when err is non-nil.
func (b *base) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "service."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		defer span.End()
		b.metrics.ObserveOperation(op, start)
		if err == nil {
			return
		}

		code := apperr.CodeOf(err)
		b.metrics.Rejections.WithLabelValues(op, code).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, code)

		if apperr.KindOf(err) == apperr.KindInternal {
			slog.ErrorContext(ctx, op+" failed", "error", err)
		} else {
			slog.WarnContext(ctx, op+" rejected", "code", code, "error", err)
		}
	}
}

// publish delivers evt after the ledger write has committed. Failures are
// logged and counted, never returned.
func (b *base) publish(ctx context.Context, evt events.Event) {
	ctx = context.WithoutCancel(ctx)
	if err := b.publisher.Publish(ctx, evt); err != nil {
		b.metrics.EventsFailed.WithLabelValues(string(evt.Type)).Inc()
		slog.WarnContext(ctx, "Event publish failed", "event_type", evt.Type, "event_id", evt.ID, "group_id", evt.GroupID, "error", err)
		return
	}
	b.metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
}

// withGroupLock serializes fn with every other writer of groupID.
func (b *base) withGroupLock(ctx context.Context, groupID string, fn func(ctx context.Context) error) error {
	return b.locker.WithLock(ctx, lock.GroupKey(groupID), fn)
}

func groupNotFound(groupID string) error {
	return apperr.Newf(apperr.ErrNotFound, "group %s not found", groupID)
}

// memberGroup loads a group and hides it from non-members.
func (b *base) memberGroup(ctx context.Context, groupID, requester string) (*models.Group, error) {
	group, err := b.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(requester) {
		return nil, groupNotFound(groupID)
	}
	return group, nil
}

// userDetails resolves ids to directory entries in order. Unknown ids get
// a placeholder named "Unknown".
func (b *base) userDetails(ctx context.Context, ids []string) ([]*models.User, error) {
	users, err := b.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*models.User, len(ids))
	for i, id := range ids {
		if u, ok := users[id]; ok {
			out[i] = u
		} else {
			out[i] = &models.User{ID: id, Name: unknownName}
		}
	}
	return out, nil
}

const unknownName = "Unknown"

func requireRequester(requester string) error {
	if requester == "" {
		return apperr.ErrUnauthenticated
	}
	return nil
}
