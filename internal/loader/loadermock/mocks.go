// Package loadermock has the testify mocks of the bundle loader collaborators.
package loadermock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/slok/assetpipe/internal/bundle"
	"github.com/slok/assetpipe/internal/cache"
	"github.com/slok/assetpipe/internal/decrypt"
	"github.com/slok/assetpipe/internal/download"
	"github.com/slok/assetpipe/internal/model"
)

// MockSystem is a mock of download.System.
type MockSystem struct {
	mock.Mock
}

func (m *MockSystem) BeginDownload(d download.Descriptor, maxRetries int) download.Operation {
	ret := m.Called(d, maxRetries)
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).(download.Operation)
}

// MockOperation is a mock of download.Operation.
type MockOperation struct {
	mock.Mock
}

func (m *MockOperation) Update() { m.Called() }

func (m *MockOperation) Progress() float64 { return m.Called().Get(0).(float64) }

func (m *MockOperation) DownloadedBytes() uint64 { return m.Called().Get(0).(uint64) }

func (m *MockOperation) IsDone() bool { return m.Called().Bool(0) }

func (m *MockOperation) HasError() bool { return m.Called().Bool(0) }

func (m *MockOperation) LastError() string { return m.Called().String(0) }

// MockManifestPatcher is a mock of loader.ManifestPatcher.
type MockManifestPatcher struct {
	mock.Mock
}

func (m *MockManifestPatcher) GetUnpackDescriptor(desc model.BundleDescriptor) download.Descriptor {
	return m.Called(desc).Get(0).(download.Descriptor)
}

// MockCacheVerifier is a mock of loader.CacheVerifier.
type MockCacheVerifier struct {
	mock.Mock
}

func (m *MockCacheVerifier) VerifyRecordedFile(ctx context.Context, packageName, cacheID string) cache.VerifyResult {
	return m.Called(ctx, packageName, cacheID).Get(0).(cache.VerifyResult)
}

func (m *MockCacheVerifier) DiscardFile(ctx context.Context, packageName, cacheID string) error {
	return m.Called(ctx, packageName, cacheID).Error(0)
}

// MockEngine is a mock of bundle.Engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) LoadFromFile(path string, offset uint64) *bundle.Bundle {
	return bundleRet(m.Called(path, offset))
}

func (m *MockEngine) LoadFromFileAsync(path string, offset uint64) bundle.CreateRequest {
	return requestRet(m.Called(path, offset))
}

func (m *MockEngine) LoadFromMemory(data []byte) *bundle.Bundle {
	return bundleRet(m.Called(data))
}

func (m *MockEngine) LoadFromMemoryAsync(data []byte) bundle.CreateRequest {
	return requestRet(m.Called(data))
}

func (m *MockEngine) LoadFromStream(r io.ReadSeeker, readBufferSize uint32) *bundle.Bundle {
	return bundleRet(m.Called(r, readBufferSize))
}

func (m *MockEngine) LoadFromStreamAsync(r io.ReadSeeker, readBufferSize uint32) bundle.CreateRequest {
	return requestRet(m.Called(r, readBufferSize))
}

// MockCreateRequest is a mock of bundle.CreateRequest.
type MockCreateRequest struct {
	mock.Mock
}

func (m *MockCreateRequest) IsDone() bool { return m.Called().Bool(0) }

func (m *MockCreateRequest) Bundle() *bundle.Bundle { return bundleRet(m.Called()) }

// MockDecryptionServices is a mock of decrypt.Services.
type MockDecryptionServices struct {
	mock.Mock
}

func (m *MockDecryptionServices) LoadFromFileOffset(fi decrypt.FileInfo) (uint64, error) {
	ret := m.Called(fi)
	return ret.Get(0).(uint64), ret.Error(1)
}

func (m *MockDecryptionServices) LoadFromMemory(fi decrypt.FileInfo) ([]byte, error) {
	ret := m.Called(fi)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).([]byte), ret.Error(1)
}

func (m *MockDecryptionServices) LoadFromStream(fi decrypt.FileInfo) (io.ReadSeekCloser, error) {
	ret := m.Called(fi)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(io.ReadSeekCloser), ret.Error(1)
}

func (m *MockDecryptionServices) ManagedReadBufferSize() uint32 {
	return m.Called().Get(0).(uint32)
}

func bundleRet(args mock.Arguments) *bundle.Bundle {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*bundle.Bundle)
}

func requestRet(args mock.Arguments) bundle.CreateRequest {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(bundle.CreateRequest)
}
