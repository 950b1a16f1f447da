package credstore

import "errors"

var (
	ErrNotFound      = errors.New("credstore: not found")
	ErrUnavailable   = errors.New("credstore: store unavailable")
	ErrInvalidKey    = errors.New("credstore: key outside namespace")
	ErrNoPassphrase  = errors.New("credstore: passphrase is required")
	ErrSealCorrupted = errors.New("credstore: sealed value corrupted")
)
