package models

import "errors"

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

// ErrInvalidUserID is returned when a user id path parameter is not an unsigned integer.
var ErrInvalidUserID = errors.New("invalid user id")

// ErrUserNotFound is returned when no row matches the requested id.
var ErrUserNotFound = errors.New("user not found")

// ErrStoreUnavailable wraps any connection or query failure of the storage.
var ErrStoreUnavailable = errors.New("storage is unavailable")

type ErrorResponse struct {
	Error string `json:"error"`
}

type InternalStatsResponse struct {
	Users    int64            `json:"users"`
	Requests uint64           `json:"requests"`
	Routes   map[string]int64 `json:"routes,omitempty"`
}
