package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reservetender/reservetender/pkg/storage/storagemock"
	"github.com/reservetender/reservetender/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(db *storagemock.MockDatabase, gw *mockGateway, now time.Time) *Manager {
	m := New(db, gw)
	m.now = func() time.Time { return now }
	return m
}

func TestEnsureSessionReuse(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}

	db.On("GetCredential", mock.Anything).Return(types.Credential{
		RefreshToken: "refresh",
		AccessToken:  "access",
		ExpiresAt:    now.Add(time.Hour),
	}, nil)
	gw.On("UseToken", "access").Return()

	m := newTestManager(db, gw, now)
	require.NoError(t, m.EnsureSession(context.Background()))

	// No refresh, no login, no writes
	gw.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	db.AssertNotCalled(t, "SetCredential", mock.Anything, mock.Anything)
	gw.AssertExpectations(t)
}

func TestEnsureSessionRefresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}

	db.On("GetCredential", mock.Anything).Return(types.Credential{
		RefreshToken: "old-refresh",
		AccessToken:  "old-access",
		ExpiresAt:    now.Add(-time.Minute),
	}, nil)

	fresh := types.Credential{
		RefreshToken: "new-refresh",
		AccessToken:  "new-access",
		ExpiresAt:    now.Add(45 * 24 * time.Hour),
	}
	gw.On("Refresh", mock.Anything, "old-refresh").Return(fresh, nil).Once()
	// all three fields persisted in one call, before the token is used
	db.On("SetCredential", mock.Anything, fresh).Return(nil).Once()
	gw.On("UseToken", "new-access").Return()

	m := newTestManager(db, gw, now)
	require.NoError(t, m.EnsureSession(context.Background()))

	db.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestEnsureSessionNoRefreshToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}

	db.On("GetCredential", mock.Anything).Return(types.Credential{}, nil)

	m := newTestManager(db, gw, now)
	err := m.EnsureSession(context.Background())
	require.Error(t, err)

	var aerr *types.AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, aerr.Error(), "no refresh token")

	// the failure path performs zero network calls
	gw.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "UseToken", mock.Anything)
}

func TestEnsureSessionRefreshFails(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}

	db.On("GetCredential", mock.Anything).Return(types.Credential{
		RefreshToken: "old-refresh",
	}, nil)
	gw.On("Refresh", mock.Anything, "old-refresh").Return(types.Credential{}, errors.New("network down"))

	m := newTestManager(db, gw, now)
	err := m.EnsureSession(context.Background())
	require.Error(t, err)

	var aerr *types.AuthError
	require.ErrorAs(t, err, &aerr)
	db.AssertNotCalled(t, "SetCredential", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "UseToken", mock.Anything)
}

func TestLogin(t *testing.T) {
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}

	cred := types.Credential{
		RefreshToken: "refresh",
		AccessToken:  "access",
		ExpiresAt:    time.Unix(1700000000, 0),
	}
	gw.On("Login", mock.Anything, "user@example.com", "hunter2", "123456").Return(cred, nil).Once()
	db.On("SetCredential", mock.Anything, cred).Return(nil).Once()
	gw.On("UseToken", "access").Return()

	m := New(db, gw)
	got, err := m.Login(context.Background(), "user@example.com", "hunter2", "123456")
	require.NoError(t, err)
	assert.Equal(t, cred, got)

	db.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestLoginFails(t *testing.T) {
	db := &storagemock.MockDatabase{}
	gw := &mockGateway{}

	gw.On("Login", mock.Anything, "user@example.com", "wrong", "").
		Return(types.Credential{}, errors.New("401"))

	m := New(db, gw)
	_, err := m.Login(context.Background(), "user@example.com", "wrong", "")
	require.Error(t, err)

	var aerr *types.AuthError
	require.ErrorAs(t, err, &aerr)
	db.AssertNotCalled(t, "SetCredential", mock.Anything, mock.Anything)
}
