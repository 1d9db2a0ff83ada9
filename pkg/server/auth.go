package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/reservetender/reservetender/pkg/log"
)

// authMiddleware verifies the bearer ID token on every API request and
// gates each path on the caller's identity: /api/reconcile is for the
// scheduler's service account, everything else is for admins.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("reqPath", r.URL.Path))

		if s.bypassAuth {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing auth header", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		email, err := s.authenticateToken(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if r.URL.Path == "/api/reconcile" {
			// the scheduler identity may only reconcile; admins may too
			if !s.isReconcileIdentity(email) && !s.isAdmin(email) {
				log.Ctx(ctx).WarnContext(ctx, "reconcile email mismatch", slog.String("got", email))
				writeJSONError(w, "forbidden", http.StatusForbidden)
				return
			}
		} else if !s.isAdmin(email) {
			log.Ctx(ctx).WarnContext(ctx, "email not in admin list", slog.String("got", email))
			writeJSONError(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx = context.WithValue(ctx, emailContextKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticateToken validates the ID token and returns its email claim.
func (s *Server) authenticateToken(ctx context.Context, token string) (string, error) {
	idToken, err := s.verifier(ctx, token)
	if err != nil {
		return "", err
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", err
	}
	return claims.Email, nil
}

func (s *Server) isReconcileIdentity(email string) bool {
	if s.reconcileEmail == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(email), []byte(s.reconcileEmail)) == 1
}

func (s *Server) isAdmin(email string) bool {
	for _, adminEmail := range s.adminEmails {
		if email == adminEmail {
			return true
		}
	}
	return false
}
