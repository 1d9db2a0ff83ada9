package server

import (
	"net/http"

	"github.com/reservetender/reservetender/pkg/types"
)

// handleReconcile is the scheduler-facing trigger. The engine never fails the
// request: errors were already alerted, so the scheduler only needs to see the
// outcome. A retry here would double-notify, not fix anything.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	outcome := s.engine.Reconcile(r.Context())
	writeJSON(w, struct {
		Outcome types.Outcome `json:"outcome"`
	}{Outcome: outcome})
}
