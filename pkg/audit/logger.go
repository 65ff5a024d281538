package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger records audit events to a Storage.
type Logger struct {
	storage           Storage
	tenantIDExtractor func(context.Context) (string, bool)
	actorIDExtractor  func(context.Context) (string, bool)
	ipExtractor       func(context.Context) (string, bool)
	now               func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	l := &Logger{
		storage: storage,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Log records a successful action
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.record(ctx, action, ResultSuccess, nil, opts)
}

// LogError records a failed action
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.record(ctx, action, ResultError, err, opts)
}

func (l *Logger) record(ctx context.Context, action string, result Result, cause error, opts []EventOption) error {
	event := l.eventFromContext(ctx)
	event.ID = uuid.New().String()
	event.CreatedAt = l.now().UTC()
	event.Action = action
	event.Result = result
	if cause != nil {
		event.Error = cause.Error()
	}

	// Explicit options win over context-derived values.
	for _, opt := range opts {
		opt(&event)
	}

	if err := event.Validate(); err != nil {
		return err
	}

	return l.storage.Store(ctx, event)
}

// eventFromContext extracts event data from context
func (l *Logger) eventFromContext(ctx context.Context) Event {
	event := Event{}

	if l.tenantIDExtractor != nil {
		if tenantID, ok := l.tenantIDExtractor(ctx); ok {
			event.TenantID = tenantID
		}
	}

	if l.actorIDExtractor != nil {
		if actorID, ok := l.actorIDExtractor(ctx); ok {
			event.ActorID = actorID
		}
	}

	if l.ipExtractor != nil {
		if ip, ok := l.ipExtractor(ctx); ok {
			event.IP = ip
		}
	}

	return event
}
