package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

// UsersListLimit caps the number of users returned by ListUsers.
const UsersListLimit = 10

type usersKeeper interface {
	ListUsers(ctx context.Context, limit int) ([]user.User, error)

	GetUserByID(ctx context.Context, id int64) (*user.User, bool, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	usersKeeper
	pinger
}

type requestCounter interface {
	Increment() uint64
	Value() uint64
}

// Service holds the request handling logic shared by the HTTP and gRPC surfaces.
type Service struct {
	db      storage
	counter requestCounter
}

func New(db storage, counter requestCounter) *Service {
	return &Service{
		db:      db,
		counter: counter,
	}
}

// NextRequestNumber increments the shared request counter and returns the new value.
func (s *Service) NextRequestNumber() uint64 {
	return s.counter.Increment()
}

// ListUsers returns up to UsersListLimit users in the store's default order.
// An empty table gives an empty, non-nil slice.
func (s *Service) ListUsers(ctx context.Context) ([]user.User, error) {
	users, err := s.db.ListUsers(ctx, UsersListLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	if users == nil {
		users = []user.User{}
	}

	return users, nil
}

// ParseUserID trims surrounding whitespace and parses rawID as an unsigned 32-bit integer.
func (s *Service) ParseUserID(rawID string) (int64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", models.ErrInvalidUserID, rawID)
	}

	return int64(id), nil
}

// GetUser resolves the user addressed by rawID.
func (s *Service) GetUser(ctx context.Context, rawID string) (*user.User, error) {
	id, err := s.ParseUserID(rawID)
	if err != nil {
		return nil, err
	}

	usr, found, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %d", models.ErrUserNotFound, id)
	}

	return usr, nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetInternalStats returns the number of users and the current request counter.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
	}

	return models.InternalStatsResponse{
		Users:    users,
		Requests: s.counter.Value(),
	}, nil
}
