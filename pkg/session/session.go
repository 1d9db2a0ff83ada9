// Package session keeps the vendor API session usable across invocations
// without re-authenticating on every run.
package session

import (
	"log/slog"
	"time"

	"context"

	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/powerwall"
	"github.com/reservetender/reservetender/pkg/storage"
	"github.com/reservetender/reservetender/pkg/types"
)

// Manager owns the credential cache. The storage layer is the system of
// record; Manager's in-memory view is only valid for the current invocation.
type Manager struct {
	db  storage.Database
	gw  powerwall.Gateway
	now func() time.Time
}

// New returns a Manager using the given store and gateway.
func New(db storage.Database, gw powerwall.Gateway) *Manager {
	return &Manager{
		db:  db,
		gw:  gw,
		now: time.Now,
	}
}

// EnsureSession makes the gateway usable: it reuses the stored access token
// when still valid, otherwise exchanges the refresh token for a new triple,
// persisting it before use. With no refresh token it fails with AuthError and
// performs no network calls; an interactive login must happen out-of-band.
//
// Network errors during refresh are surfaced as-is; retry policy belongs to
// the invocation's outer failure handler.
func (m *Manager) EnsureSession(ctx context.Context) error {
	cred, err := m.db.GetCredential(ctx)
	if err != nil {
		return err
	}

	if cred.Valid(m.now()) {
		log.Ctx(ctx).DebugContext(ctx, "reusing stored access token", slog.Time("expiresAt", cred.ExpiresAt))
		m.gw.UseToken(cred.AccessToken)
		return nil
	}

	log.Ctx(ctx).InfoContext(ctx, "no access token or it is expired, getting new one with refresh token")

	if cred.RefreshToken == "" {
		return &types.AuthError{Msg: "no refresh token"}
	}

	fresh, err := m.gw.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return &types.AuthError{Msg: "refresh exchange failed", Err: err}
	}

	// Persist before use: the refresh invalidated the old triple, so losing
	// the new one here would strand the next invocation.
	if err := m.db.SetCredential(ctx, fresh); err != nil {
		return err
	}

	m.gw.UseToken(fresh.AccessToken)
	return nil
}

// Login performs full interactive authentication and persists the fresh
// credential triple. It is only called from the interactive login entry
// point, never from the unattended reconciliation path.
func (m *Manager) Login(ctx context.Context, username, password, mfaPassCode string) (types.Credential, error) {
	cred, err := m.gw.Login(ctx, username, password, mfaPassCode)
	if err != nil {
		return types.Credential{}, &types.AuthError{Msg: "login failed, check your username, password or MFA token and try again", Err: err}
	}

	if err := m.db.SetCredential(ctx, cred); err != nil {
		return types.Credential{}, err
	}

	m.gw.UseToken(cred.AccessToken)
	return cred, nil
}
