package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitegate.io/internal/ids"
	"sitegate.io/internal/obs"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 3 * time.Second
)

// Store persists activity entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
}

// Alerts receives critical entries on the higher visibility security path.
type Alerts interface {
	Publish(ctx context.Context, e Entry) error
}

// Logger queues entries and writes them from a single goroutine. Log never blocks: when the
// queue is full the entry is dropped and counted.
type Logger struct {
	store        Store
	alerts       Alerts
	now          func() time.Time
	log          *zap.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithAlerts sets the sink for critical entries.
func WithAlerts(a Alerts) Option {
	return func(l *Logger) { l.alerts = a }
}

// WithQueueSize bounds the number of pending entries.
func WithQueueSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.queue = make(chan Entry, n)
		}
	}
}

// WithClock overrides the time source used for OccurredAt.
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithWriteTimeout bounds each sink call.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// New starts the writer goroutine. Call Close to drain and stop it.
func New(store Store, opts ...Option) *Logger {
	l := &Logger{
		store:        store,
		now:          time.Now,
		log:          obs.Named("audit"),
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan Entry, defaultQueueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l
}

// Log enqueues an entry. Missing id, timestamp and request id are filled in here.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if l == nil {
		return
	}
	e = e.clone()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = obs.RequestIDFromContext(ctx)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		obs.ObserveActivity("dropped")
		return
	}
	select {
	case l.queue <- e:
	default:
		obs.ObserveActivity("dropped")
		l.log.Warn("activity queue full, entry dropped",
			obs.Activity(string(e.Type)), obs.PrincipalID(e.PrincipalID))
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to end.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit: drain: %w", ctx.Err())
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		l.write(e)
	}
}

func (l *Logger) write(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			obs.ObserveActivity("failed")
			l.log.Error("activity sink panicked", zap.Any("panic", r), zap.String("entry_id", e.ID))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()

	if l.store != nil {
		if err := l.store.Append(ctx, e); err != nil {
			obs.ObserveActivity("failed")
			l.log.Warn("activity write failed", zap.String("entry_id", e.ID),
				obs.Activity(string(e.Type)), zap.Error(err))
		} else {
			obs.ObserveActivity("written")
		}
	}
	if l.alerts != nil && IsCritical(e.Type) {
		if err := l.alerts.Publish(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
			l.log.Warn("security alert publish failed", zap.String("entry_id", e.ID), zap.Error(err))
		}
	}
}
