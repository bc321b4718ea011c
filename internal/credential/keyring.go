// Package credential stores the API token in the system keyring and
// derives the signed-in user from it.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "healthnotify"

// TokenKey is the keyring key of the API bearer token.
const TokenKey = "api-token"

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("credential not found")

// openRing opens the keyring holding the notification API token. Tests
// replace it with an in-memory ring.
var openRing = func() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/healthnotify/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("healthnotify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get returns the value stored under key, normally TokenKey. It returns
// ErrNotFound when the user never logged in on this machine.
func Get(key string) (string, error) {
	ring, err := openRing()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	switch {
	case errors.Is(err, keyring.ErrKeyNotFound):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("reading %q from keyring: %w", key, err)
	}
	return string(item.Data), nil
}

// Set saves value under key, replacing an earlier login. An empty value
// is rejected so a blank -login cannot wipe a working token.
func Set(key, value string) error {
	if value == "" {
		return fmt.Errorf("saving %q: empty value", key)
	}
	ring, err := openRing()
	if err != nil {
		return err
	}

	if err := ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	}); err != nil {
		return fmt.Errorf("saving %q to keyring: %w", key, err)
	}
	return nil
}

// Delete forgets the value under key. Logging out twice is not an error.
func Delete(key string) error {
	ring, err := openRing()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing %q from keyring: %w", key, err)
	}
	return nil
}
