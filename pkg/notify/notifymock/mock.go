package notifymock

import (
	"context"

	"github.com/reservetender/reservetender/pkg/notify"
	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

var _ notify.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, subject, message string) error {
	args := m.Called(ctx, subject, message)
	return args.Error(0)
}

func (m *MockNotifier) Subscribe(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockNotifier) Subscriptions(ctx context.Context) ([]notify.Subscription, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]notify.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}
