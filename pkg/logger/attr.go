package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Error returns an empty attribute for a nil err, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Identifier attributes below are empty when the id is nil, an empty string
// or uuid.Nil.

func TenantID(id any) slog.Attr       { return idAttr("tenant_id", id) }
func SubscriptionID(id any) slog.Attr { return idAttr("subscription_id", id) }
func UserID(id any) slog.Attr         { return idAttr("user_id", id) }
func RequestID(id any) slog.Attr      { return idAttr("request_id", id) }
func RunID(id any) slog.Attr          { return idAttr("run_id", id) }

func PlanID(id string) slog.Attr {
	return slog.String("plan_id", id)
}

// Task names a scheduler task.
func Task(name string) slog.Attr {
	return slog.String("task", name)
}

func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event names an inbound gateway or domain event.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func idAttr(key string, id any) slog.Attr {
	switch v := id.(type) {
	case nil:
		return slog.Attr{}
	case string:
		if v == "" {
			return slog.Attr{}
		}
		return slog.String(key, v)
	case uuid.UUID:
		if v == uuid.Nil {
			return slog.Attr{}
		}
		return slog.String(key, v.String())
	case *uuid.UUID:
		if v == nil || *v == uuid.Nil {
			return slog.Attr{}
		}
		return slog.String(key, v.String())
	default:
		return slog.Any(key, v)
	}
}
