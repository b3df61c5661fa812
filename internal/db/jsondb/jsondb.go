// Package jsondb provides a read-only user storage backed by a JSON fixture file.
// The file holds an array of users; a missing file yields an empty table.
package jsondb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/userapi/internal/user"
)

// JSONDB keeps the users loaded from fileName in memory.
type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

// CacheStruct is the in-memory users table keyed by id.
type CacheStruct struct {
	Users map[int64]*user.User
}

// New loads users from fileName.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache: CacheStruct{
			Users: map[int64]*user.User{},
		},
	}

	users, err := parseJSONFile(fileName)
	if err != nil {
		return nil, err
	}
	db.AddUsers(users...)

	return db, nil
}

func parseJSONFile(fileName string) ([]user.User, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/parseJSONFile(): error while `os.ReadFile()` calling: %w", err)
	}

	var users []user.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/parseJSONFile(): error while `json.Unmarshal()` calling: %w", err)
	}

	for _, usr := range users {
		if usr.ID <= 0 {
			return nil, fmt.Errorf("user %q in %s has a non-positive id %d", usr.Name, fileName, usr.ID)
		}
	}

	return users, nil
}

// AddUsers puts users into the table, replacing rows with the same id.
func (db *JSONDB) AddUsers(users ...user.User) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, usr := range users {
		usr := usr
		db.Cache.Users[usr.ID] = &usr
	}
}

// ListUsers returns at most limit users in ascending id order.
func (db *JSONDB) ListUsers(ctx context.Context, limit int) ([]user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := funk.Keys(db.Cache.Users).([]int64)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]user.User, 0, len(ids))
	for _, id := range ids {
		result = append(result, *db.Cache.Users[id])
	}

	return result, nil
}

// GetUserByID returns the user with the given id and whether it was found.
func (db *JSONDB) GetUserByID(ctx context.Context, id int64) (*user.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, found := db.Cache.Users[id]
	if !found {
		return nil, false, nil
	}
	result := *usr

	return &result, true, nil
}

// GetNumberOfUsers returns the number of rows in the table.
func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

// Ping always succeeds once the file has been loaded.
func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op: the fixture file is never written back.
func (db *JSONDB) Close() error {
	return nil
}
