// Package server exposes the HTTP API: interactive login, settings
// management, the scheduler-facing reconcile trigger and the outcome history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/notify"
	"github.com/reservetender/reservetender/pkg/powerwall"
	"github.com/reservetender/reservetender/pkg/reconciler"
	"github.com/reservetender/reservetender/pkg/session"
	"github.com/reservetender/reservetender/pkg/storage"
)

type contextKey string

const emailContextKey contextKey = "email"

// tokenVerifier is a function that validates a Google ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server handles the HTTP API for the ReserveTender system. It orchestrates
// interactions between the device gateway, storage and the notifier.
type Server struct {
	db       storage.Database
	gw       powerwall.Gateway
	sess     *session.Manager
	engine   *reconciler.Engine
	notifier notify.Notifier

	listenAddr string
	httpServer *http.Server

	reconcileEmail string
	adminEmails    []string
	oidcAudience   string
	verifier       tokenVerifier
	bypassAuth     bool
	serverName     string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, gw powerwall.Gateway, n notify.Notifier) *Server {
	srv := &Server{
		db:         db,
		gw:         gw,
		sess:       session.New(db, gw),
		engine:     reconciler.New(db, gw, n),
		notifier:   n,
		serverName: "reservetender",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcAudience := lflag.String("oidc-audience", "", "audience/client ID to validate for id tokens")
	reconcileEmail := lflag.String("reconcile-email", "", "service account email allowed to trigger /api/reconcile")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to change settings")
	bypassAuth := lflag.Bool("bypass-auth", false, "Disable authentication (development only)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.reconcileEmail = *reconcileEmail
		if *adminEmails != "" {
			srv.adminEmails = strings.Split(*adminEmails, ",")
			for i, email := range srv.adminEmails {
				srv.adminEmails[i] = strings.TrimSpace(email)
			}
		}
		srv.bypassAuth = *bypassAuth
		if *oidcAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.verifier = provider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify
			srv.oidcAudience = *oidcAudience
		}
		if !srv.bypassAuth && srv.verifier == nil {
			log.Ctx(context.Background()).Error("oidc-audience is required unless bypass-auth is set")
			os.Exit(1)
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/login", s.handleLogin)
	apiMux.HandleFunc("GET /api/settings", s.handleGetSettings)
	apiMux.HandleFunc("GET /api/settings/{setting}", s.handleGetSetting)
	apiMux.HandleFunc("POST /api/settings/{setting}", s.handleUpdateSetting)
	apiMux.HandleFunc("POST /api/reconcile", s.handleReconcile)
	apiMux.HandleFunc("GET /api/history", s.handleHistory)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(mux))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capture server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
