package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/reservetender/reservetender/pkg/notify/notifymock"
	"github.com/reservetender/reservetender/pkg/reconciler"
	"github.com/reservetender/reservetender/pkg/session"
	"github.com/reservetender/reservetender/pkg/storage/storagemock"
	"github.com/reservetender/reservetender/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var farFuture = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(db *storagemock.MockDatabase, gw *mockGateway, n *notifymock.MockNotifier) *Server {
	return &Server{
		db:         db,
		gw:         gw,
		sess:       session.New(db, gw),
		engine:     reconciler.New(db, gw, n),
		notifier:   n,
		bypassAuth: true,
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&storagemock.MockDatabase{}, &mockGateway{}, &notifymock.MockNotifier{})
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Equal(t, "ok", w.Body.String())
}

func TestAuthMissingHeader(t *testing.T) {
	srv := newTestServer(&storagemock.MockDatabase{}, &mockGateway{}, &notifymock.MockNotifier{})
	srv.bypassAuth = false
	srv.verifier = func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
		t.Fatal("verifier should not be called without a header")
		return nil, nil
	}

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
}

func TestAuthInvalidScheme(t *testing.T) {
	srv := newTestServer(&storagemock.MockDatabase{}, &mockGateway{}, &notifymock.MockNotifier{})
	srv.bypassAuth = false

	req := httptest.NewRequest("GET", "/api/settings", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestAuthBadToken(t *testing.T) {
	srv := newTestServer(&storagemock.MockDatabase{}, &mockGateway{}, &notifymock.MockNotifier{})
	srv.bypassAuth = false
	srv.verifier = func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
		return nil, errors.New("token expired")
	}

	req := httptest.NewRequest("POST", "/api/reconcile", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
}

func TestReconcileIdentity(t *testing.T) {
	srv := &Server{reconcileEmail: "scheduler@project.iam.gserviceaccount.com", adminEmails: []string{"admin@example.com"}}

	assert.True(t, srv.isReconcileIdentity("scheduler@project.iam.gserviceaccount.com"))
	assert.False(t, srv.isReconcileIdentity("admin@example.com"))
	assert.True(t, srv.isAdmin("admin@example.com"))
	assert.False(t, srv.isAdmin("scheduler@project.iam.gserviceaccount.com"))

	// with no reconcile email configured nobody matches
	srv.reconcileEmail = ""
	assert.False(t, srv.isReconcileIdentity(""))
}

func TestReconcileEndpointSkipped(t *testing.T) {
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}
	n := &notifymock.MockNotifier{}
	srv := newTestServer(db, gw, n)

	db.On("GetCredential", mock.Anything).Return(types.Credential{
		RefreshToken: "refresh",
		AccessToken:  "access",
		ExpiresAt:    farFuture,
	}, nil)
	gw.On("UseToken", "access").Return()
	gw.On("GetStatus", mock.Anything).Return(types.SiteStatus{
		SiteID:     "12345",
		TOUEnabled: false,
		TimeZone:   "UTC",
		Location:   nil,
	}, nil)
	db.On("InsertOutcome", mock.Anything, mock.Anything).Return(nil)

	req := httptest.NewRequest("POST", "/api/reconcile", nil)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"kind":"skipped"`)
	gw.AssertNotCalled(t, "SetReserve", mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryEndpoint(t *testing.T) {
	db := &storagemock.MockDatabase{}
	srv := newTestServer(db, &mockGateway{}, &notifymock.MockNotifier{})

	db.On("GetOutcomeHistory", mock.Anything, mock.Anything, mock.Anything).Return([]types.Outcome{
		{Kind: types.OutcomeUpdated, FromReserve: 100, ToReserve: 20},
	}, nil)

	req := httptest.NewRequest("GET", "/api/history", nil)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Contains(t, w.Body.String(), `"kind":"updated"`)
}

func TestHistoryEndpointBadRange(t *testing.T) {
	srv := newTestServer(&storagemock.MockDatabase{}, &mockGateway{}, &notifymock.MockNotifier{})

	req := httptest.NewRequest("GET", "/api/history?start=notatime&end=2024-06-03T00:00:00Z", nil)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestLogin(t *testing.T) {
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}
	srv := newTestServer(db, gw, &notifymock.MockNotifier{})

	cred := types.Credential{RefreshToken: "refresh", AccessToken: "access", ExpiresAt: farFuture}
	gw.On("Login", mock.Anything, "user@example.com", "hunter2", "123456").Return(cred, nil)
	db.On("SetCredential", mock.Anything, cred).Return(nil)
	gw.On("UseToken", "access").Return()

	req := httptest.NewRequest("POST", "/api/login",
		strings.NewReader(`{"username":"user@example.com","password":"hunter2","mfaPassCode":"123456"}`))
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	gw.AssertExpectations(t)
	db.AssertExpectations(t)
}

func TestLoginMissingFields(t *testing.T) {
	srv := newTestServer(&storagemock.MockDatabase{}, &mockGateway{}, &notifymock.MockNotifier{})

	req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"username":"user@example.com"}`))
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestLoginFailure(t *testing.T) {
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}
	srv := newTestServer(db, gw, &notifymock.MockNotifier{})

	gw.On("Login", mock.Anything, "user@example.com", "wrong", "").
		Return(types.Credential{}, errors.New("401"))

	req := httptest.NewRequest("POST", "/api/login",
		strings.NewReader(`{"username":"user@example.com","password":"wrong"}`))
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
	db.AssertNotCalled(t, "SetCredential", mock.Anything, mock.Anything)
}
