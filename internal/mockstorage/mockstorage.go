// Package mockstorage provides a testify-based mock implementation
// of the users storage. It is used for unit testing handlers by simulating storage behavior.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/userapi/internal/user"
)

// StorageMock is a testify mock that implements all interfaces
// the service and the router expect from a storage.
type StorageMock struct {
	mock.Mock
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ListUsers mocks a bounded users listing.
func (m *StorageMock) ListUsers(ctx context.Context, limit int) ([]user.User, error) {
	args := m.Called(ctx, limit)
	users, _ := args.Get(0).([]user.User)
	return users, args.Error(1)
}

// GetUserByID mocks fetching a user by id.
func (m *StorageMock) GetUserByID(ctx context.Context, id int64) (*user.User, bool, error) {
	args := m.Called(ctx, id)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

// GetNumberOfUsers mocks counting users.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks closing the storage and releasing resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
