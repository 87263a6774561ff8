package permissions

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Middleware wires capability-based authorization for HTTP handlers. Checks
// run against the global scope, which is how the admin surface itself is
// guarded; scoped checks belong in handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current user holds the capability.
func (m Middleware) Require(capability string) func(http.Handler) http.Handler {
	return m.RequireAny(capability)
}

// RequireAny ensures the current user holds at least one of the capabilities.
func (m Middleware) RequireAny(capabilities ...string) func(http.Handler) http.Handler {
	normalized := normalizeCapabilities(capabilities)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, capability := range normalized {
				granted, err := m.Service.CheckPermission(r.Context(), userID, capability, Scope{})
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("capability check", slog.String("capability", capability), slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if granted {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

// CurrentUserID exposes the session actor for handlers.
func (m Middleware) CurrentUserID(r *http.Request) (int64, bool) {
	return m.currentUserID(r)
}

func normalizeCapabilities(capabilities []string) []string {
	unique := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		unique[c] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for c := range unique {
		normalized = append(normalized, c)
	}
	return normalized
}
