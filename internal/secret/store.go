// Package secret looks up the Grist API key outside of plain configuration.
package secret

import "os"

// APIKeyName is the key the Grist API token is stored under.
const APIKeyName = "grist-api-key"

// Store holds sensitive values such as API tokens.
type Store interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// MemoryStore keeps secrets in process memory. Used in tests and when no
// system keychain is available.
type MemoryStore map[string][]byte

func (m MemoryStore) Set(key string, value []byte) error {
	m[key] = append([]byte(nil), value...)
	return nil
}

func (m MemoryStore) Get(key string) ([]byte, error) { return m[key], nil }

func (m MemoryStore) Delete(key string) error {
	delete(m, key)
	return nil
}

// Default returns the keychain store on hosts that have the `security` tool,
// and an empty in-memory store elsewhere.
func Default() Store {
	if _, err := os.Stat(securityBin); err == nil {
		return NewKeychainStore()
	}
	return MemoryStore{}
}
