package subscription

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the logger used for operational records.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source. Tests use it to pin "now".
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditLogger records billing events to the audit trail.
// Audit failures are logged and never fail the operation.
func WithAuditLogger(a AuditLogger) ServiceOption {
	return func(s *service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *service) {
		s.metrics = m
	}
}

// WithInvalidator registers a cache that must forget a tenant after every mutation.
// May be passed more than once.
func WithInvalidator(inv Invalidator) ServiceOption {
	return func(s *service) {
		if inv != nil {
			s.invalidators = append(s.invalidators, inv)
		}
	}
}

// WithConflictRetries sets how many times a read-modify-write is retried after
// losing an optimistic concurrency race. Default is 3.
func WithConflictRetries(n int) ServiceOption {
	return func(s *service) {
		if n >= 0 {
			s.conflictRetries = n
		}
	}
}

// WithHistoryInvoiceLimit caps invoices returned per history entry. Default is 10.
func WithHistoryInvoiceLimit(n int) ServiceOption {
	return func(s *service) {
		if n > 0 {
			s.historyInvoiceLimit = n
		}
	}
}
