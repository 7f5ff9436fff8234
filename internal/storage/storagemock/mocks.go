// Package storagemock has the testify mocks of the storage interfaces.
package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/assetpipe/internal/model"
)

// MockCacheRepository is a mock of storage.CacheRepository.
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) UpsertRecord(ctx context.Context, r model.CacheRecord) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockCacheRepository) GetRecord(ctx context.Context, packageName, cacheID string) (*model.CacheRecord, error) {
	ret := m.Called(ctx, packageName, cacheID)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(*model.CacheRecord), ret.Error(1)
}

func (m *MockCacheRepository) ListRecords(ctx context.Context, packageName string) ([]model.CacheRecord, error) {
	ret := m.Called(ctx, packageName)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).([]model.CacheRecord), ret.Error(1)
}

func (m *MockCacheRepository) DeleteRecord(ctx context.Context, packageName, cacheID string) error {
	return m.Called(ctx, packageName, cacheID).Error(0)
}
