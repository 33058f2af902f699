package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
)

// Identity headers. Authentication happens upstream; these carry its result.
const (
	HeaderCompanyID  = "X-Company-ID"
	HeaderUserID     = "X-User-ID"
	HeaderRole       = "X-Role"
	HeaderEmployeeID = "X-Employee-ID"
)

type ctxKey int

const actorKey ctxKey = iota

// WithActor stores the caller in ctx.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom returns the caller stored by the actor middleware.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey).(domain.Actor)
	return a, ok
}

// actorMiddleware rejects requests without a tenant and user identity.
// A missing role means employee.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := domain.Actor{
			CompanyID:  domain.CompanyID(strings.TrimSpace(r.Header.Get(HeaderCompanyID))),
			UserID:     strings.TrimSpace(r.Header.Get(HeaderUserID)),
			EmployeeID: domain.EmployeeID(strings.TrimSpace(r.Header.Get(HeaderEmployeeID))),
			Role:       domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))),
		}
		if a.CompanyID == "" || a.UserID == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorDTO{Error: "missing caller identity", Code: "unauthenticated"})
			return
		}
		if a.Role == "" {
			a.Role = domain.RoleEmployee
		}
		if !a.Role.IsValid() {
			writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "unknown role", Code: "invalid_role", Field: HeaderRole})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
	})
}

// resolveActor binds the caller to its directory employee before any
// handler runs. A mismatched X-Employee-ID is rejected.
func (h *Handler) resolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := h.Leaves.ResolveActor(r.Context(), actor(r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
	})
}

// requestLogger logs one line per request with its chi request id.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
