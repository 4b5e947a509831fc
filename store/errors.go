package store

import "errors"

var (
	// ErrCredentialNotFound indicates the credential does not exist.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidStatus indicates an update carried a status outside the known set.
	ErrInvalidStatus = errors.New("invalid credential status")
)
