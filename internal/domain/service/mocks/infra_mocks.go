// Package mocks provides testify mocks for the domain interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aimstors/sentinel/internal/domain/models"
)

// MockCounterStore is a mock implementation of service.CounterStore.
type MockCounterStore struct {
	mock.Mock
}

func (m *MockCounterStore) SlideWindow(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, member, now, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounterStore) WindowSize(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	args := m.Called(ctx, key, now, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounterStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCounterStore) SetBlockFlag(ctx context.Context, apiKeyID string, ttl time.Duration) error {
	args := m.Called(ctx, apiKeyID, ttl)
	return args.Error(0)
}

func (m *MockCounterStore) ClearBlockFlag(ctx context.Context, apiKeyID string) error {
	args := m.Called(ctx, apiKeyID)
	return args.Error(0)
}

func (m *MockCounterStore) IsBlocked(ctx context.Context, apiKeyID string) (bool, error) {
	args := m.Called(ctx, apiKeyID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCounterStore) SetThreshold(ctx context.Context, value float64, ttl time.Duration) error {
	args := m.Called(ctx, value, ttl)
	return args.Error(0)
}

func (m *MockCounterStore) Threshold(ctx context.Context) (float64, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (m *MockCounterStore) Publish(ctx context.Context, channel string, payload interface{}) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

// MockEventBus is a mock implementation of service.EventBus.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Emit(ctx context.Context, topic string, payload interface{}) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

// MockNotifier is a mock implementation of service.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendSecurityAlert(ctx context.Context, alert models.SecurityAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

// MockScoreOracle is a mock implementation of service.ScoreOracle.
type MockScoreOracle struct {
	mock.Mock
}

func (m *MockScoreOracle) Score(ctx context.Context, features models.FeatureVector) (float64, error) {
	args := m.Called(ctx, features)
	return args.Get(0).(float64), args.Error(1)
}
