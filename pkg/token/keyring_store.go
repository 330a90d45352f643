package token

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "libharvest"
	keyringKey     = "access-token"
)

// KeyringStore persists the token in the system keychain.
type KeyringStore struct{}

// NewKeyringStore creates a keychain-backed token store. It fails when no
// keychain backend is reachable so callers can fall back to file storage.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Load reads the token from the keychain.
func (k *KeyringStore) Load() (*Token, error) {
	data, err := keyring.Get(keyringService, keyringKey)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var t Token
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if t.Value == "" {
		return nil, nil
	}
	return &t, nil
}

// Save writes the token to the keychain.
func (k *KeyringStore) Save(t *Token) error {
	if t == nil || t.Value == "" {
		return fmt.Errorf("refusing to save empty token")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := keyring.Set(keyringService, keyringKey, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Clear removes the token from the keychain.
func (k *KeyringStore) Clear() error {
	err := keyring.Delete(keyringService, keyringKey)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
