// Package keystore stores the control-plane bearer token in the OS
// credential store.
package keystore

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// serviceName is the identifier used in the system keyring.
const serviceName = "veil"

// ErrNotFound is returned when no credential is stored for the account.
var ErrNotFound = errors.New("keystore: credential not found")

// Store is a keyed credential store. The zero value is unusable; use New.
type Store struct {
	service string
}

// New creates a store bound to the default service name.
func New() *Store {
	return &Store{service: serviceName}
}

// SaveToken stores the bearer token for the given account.
func (s *Store) SaveToken(account, token string) error {
	return keyring.Set(s.service, account, token)
}

// Token retrieves the bearer token for the given account.
func (s *Store) Token(account string) (string, error) {
	token, err := keyring.Get(s.service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return token, nil
}

// DeleteToken removes the stored token. Deleting an absent token is not an
// error.
func (s *Store) DeleteToken(account string) error {
	err := keyring.Delete(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
