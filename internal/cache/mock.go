package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRevocationStore struct {
	mock.Mock
}

func (m *MockRevocationStore) Revoke(ctx context.Context, tokenId string, ttl time.Duration) error {
	args := m.Called(ctx, tokenId, ttl)
	return args.Error(0)
}
func (m *MockRevocationStore) IsRevoked(ctx context.Context, tokenId string) (bool, error) {
	args := m.Called(ctx, tokenId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRevocationStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
