package memorystorage

import (
	"github.com/patric-chuzhbe/userapi/internal/db/jsondb"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

// MemoryStorage is a users table living only in process memory.
// It starts empty; AddUsers seeds it.
type MemoryStorage struct {
	*jsondb.JSONDB
}

func New(users ...user.User) (*MemoryStorage, error) {
	theStorage := &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.CacheStruct{
				Users: map[int64]*user.User{},
			},
		},
	}
	theStorage.AddUsers(users...)

	return theStorage, nil
}
