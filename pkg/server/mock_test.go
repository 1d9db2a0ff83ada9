package server

import (
	"context"

	"github.com/reservetender/reservetender/pkg/powerwall"
	"github.com/reservetender/reservetender/pkg/types"
	"github.com/stretchr/testify/mock"
)

type mockGateway struct {
	mock.Mock
}

var _ powerwall.Gateway = (*mockGateway)(nil)

func (m *mockGateway) Login(ctx context.Context, username, password, mfaPassCode string) (types.Credential, error) {
	args := m.Called(ctx, username, password, mfaPassCode)
	return args.Get(0).(types.Credential), args.Error(1)
}

func (m *mockGateway) Refresh(ctx context.Context, refreshToken string) (types.Credential, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(types.Credential), args.Error(1)
}

func (m *mockGateway) UseToken(token string) {
	m.Called(token)
}

func (m *mockGateway) GetStatus(ctx context.Context) (types.SiteStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.SiteStatus), args.Error(1)
}

func (m *mockGateway) SetReserve(ctx context.Context, siteID string, percent int) error {
	args := m.Called(ctx, siteID, percent)
	return args.Error(0)
}
