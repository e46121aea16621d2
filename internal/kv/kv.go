// Package kv provides the durable key-value storage underneath the session
// store and the local data store. It is the Go analog of the browser
// localStorage the demo UI persisted into: a handful of named JSON values,
// one process, no transactions.
package kv

import "errors"

// Well-known keys. The layout is fixed: other components address storage
// exclusively through these names.
const (
	// KeyUser holds the current user record.
	KeyUser = "mock_user"

	// KeyToken holds the opaque session token.
	KeyToken = "mock_jwt"

	// KeyConversations holds the ordered conversation collection.
	KeyConversations = "mock_db_chats"

	// KeyMessages holds the ordered message collection.
	KeyMessages = "mock_db_messages"

	// KeyRegisteredUsers holds the sign-up registry (plaintext credentials;
	// mock only, never a real credential store).
	KeyRegisteredUsers = "registered_users"
)

// ErrInvalidKey indicates a key contains characters outside the allowed set.
var ErrInvalidKey = errors.New("invalid storage key")

// Store is the durable key-value interface consumed by the auth and data
// stores. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key. The boolean reports whether the key
	// exists; a missing key is not an error.
	Get(key string) ([]byte, bool, error)

	// Set writes the value for key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string) error
}

// validKey reports whether key is safe to use as a file name. Keys are
// lowercase identifiers; anything else is rejected to keep the file store
// free of path traversal concerns.
func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}
