package secret_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gristmigrate/internal/secret"
)

func TestMemoryStore(t *testing.T) {
	s := secret.MemoryStore{}
	v, err := s.Get(secret.APIKeyName)
	require.NoError(t, err)
	assert.Empty(t, v)

	buf := []byte("tok")
	require.NoError(t, s.Set(secret.APIKeyName, buf))
	buf[0] = 'x'
	v, _ = s.Get(secret.APIKeyName)
	assert.Equal(t, "tok", string(v), "stored value is copied")

	require.NoError(t, s.Delete(secret.APIKeyName))
	v, _ = s.Get(secret.APIKeyName)
	assert.Empty(t, v)
}
