package billingapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Identity headers set by the trusted authentication proxy in front of the API.
const (
	HeaderRequestID  = "X-Request-ID"
	HeaderUserID     = "X-User-ID"
	HeaderTenantID   = "X-Tenant-ID"
	HeaderSuperadmin = "X-Superadmin"
)

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned to the request, or "".
func RequestIDFromContext(ctx context.Context) string {
	return requestIDFromContext(ctx)
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggerExtractor adds the request id to every record logged with the request context.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := requestIDFromContext(ctx); id != "" {
			return logger.RequestID(id), true
		}
		return slog.Attr{}, false
	}
}

// requestID keeps a well-formed inbound X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if !requestIDPattern.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (a *api) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Duration(time.Since(start)),
		)
	})
}

// identity turns the proxy headers into an entitlement.User and a
// subscription.Actor. Requests without X-User-ID stay anonymous.
func (a *api) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		user := &entitlement.User{ID: userID}
		if raw := r.Header.Get(HeaderTenantID); raw != "" {
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				a.writeError(w, r, errInvalidTenantID)
				return
			}
			user.TenantID = tenantID
		}
		if raw := r.Header.Get(HeaderSuperadmin); raw != "" {
			user.Superadmin, _ = strconv.ParseBool(raw)
		}

		ctx := entitlement.WithUser(r.Context(), user)
		ctx = subscription.WithActor(ctx, subscription.Actor{UserID: userID, IP: clientIP(r)})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireTenant admits authenticated users acting within a tenant. It does not
// apply the trial gate, so a tenant with an expired trial can still subscribe.
func (a *api) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := entitlement.UserFromContext(r.Context())
		switch {
		case user == nil:
			a.writeError(w, r, entitlement.ErrUnauthenticated)
		case !user.HasTenant():
			a.writeError(w, r, entitlement.ErrTenantRequired)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (a *api) requireSuperadmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := entitlement.UserFromContext(r.Context())
		switch {
		case user == nil:
			a.writeError(w, r, entitlement.ErrUnauthenticated)
		case !user.Superadmin:
			a.writeError(w, r, errAdminOnly)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// clientIP resolves the caller address, preferring proxy headers over RemoteAddr.
func clientIP(r *http.Request) string {
	for _, h := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := parseIP(r.Header.Get(h)); ip != "" {
			return ip
		}
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for candidate := range strings.SplitSeq(fwd, ",") {
			if ip := parseIP(candidate); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
