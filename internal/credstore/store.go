// Package credstore persists the client's two durable secrets: the session
// token and the biometric token. Values are opaque strings addressed by a
// fixed key namespace.
package credstore

import (
	"context"
	"fmt"
)

// Key addresses one secret.
type Key string

const (
	KeyAuthToken      Key = "authToken"
	KeyBiometricToken Key = "biometricToken"
)

// Keys lists the namespace in a stable order.
var Keys = []Key{KeyAuthToken, KeyBiometricToken}

// Valid reports whether k belongs to the namespace.
func (k Key) Valid() bool {
	return k == KeyAuthToken || k == KeyBiometricToken
}

func (k Key) String() string { return string(k) }

// Store is the credential store contract. Get returns ErrNotFound for absent
// keys; any other failure wraps ErrUnavailable. Delete of an absent key is
// not an error.
type Store interface {
	Get(ctx context.Context, key Key) (string, error)
	Set(ctx context.Context, key Key, value string) error
	Delete(ctx context.Context, key Key) error
}

func checkKey(key Key) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, string(key))
	}
	return nil
}

func unavailable(op string, key Key, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, key, err)
}
