// Package user defines the user model read from the users table.
package user

// User represents one row of the users table.
// Rows are owned by the store; the service only reads them.
type User struct {
	// ID is assigned by the store.
	ID int64 `json:"id"`

	Name  string `json:"name"`
	Email string `json:"email"`
}
