package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/types"
)

// handleLogin performs interactive vendor authentication. This is the only
// path that ever sees the account password; the unattended reconcile path
// always works from the stored refresh token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		MFAPassCode string `json:"mfaPassCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSONError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	if _, err := s.sess.Login(ctx, req.Username, req.Password, req.MFAPassCode); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "login failed", slog.Any("error", err))
		var ae *types.AuthError
		if errors.As(err, &ae) {
			writeJSONError(w, ae.Msg, http.StatusUnauthorized)
			return
		}
		writeJSONError(w, "login failed", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "interactive login succeeded")
	w.WriteHeader(http.StatusNoContent)
}
