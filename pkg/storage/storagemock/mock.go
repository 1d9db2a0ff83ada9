package storagemock

import (
	"context"
	"time"

	"github.com/reservetender/reservetender/pkg/storage"
	"github.com/reservetender/reservetender/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetCredential(ctx context.Context) (types.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Credential), args.Error(1)
}

func (m *MockDatabase) SetCredential(ctx context.Context, cred types.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *MockDatabase) GetHolidays(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) SetHolidays(ctx context.Context, holidays []string) error {
	args := m.Called(ctx, holidays)
	return args.Error(0)
}

func (m *MockDatabase) GetPeakReserve(ctx context.Context) (int, bool, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockDatabase) SetPeakReserve(ctx context.Context, percent int) error {
	args := m.Called(ctx, percent)
	return args.Error(0)
}

func (m *MockDatabase) InsertOutcome(ctx context.Context, outcome types.Outcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockDatabase) GetOutcomeHistory(ctx context.Context, start, end time.Time) ([]types.Outcome, error) {
	args := m.Called(ctx, start, end)
	if v := args.Get(0); v != nil {
		return v.([]types.Outcome), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
