package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gristmigrate/internal/storage"
)

func TestApprovalStore_Resolve(t *testing.T) {
	db, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := storage.NewApprovalStore(db)

	a, err := s.Create("run_migration", "run simplifions")
	require.NoError(t, err)
	b, err := s.Create("run_migration", "run contacts")
	require.NoError(t, err)

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)

	require.NoError(t, s.Resolve(a.ID, true))
	require.NoError(t, s.Resolve(b.ID, false))

	status, err := s.Status(a.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ApprovalApproved, status)
	status, err = s.Status(b.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ApprovalRejected, status)

	// Resolved approvals cannot be resolved again.
	assert.ErrorIs(t, s.Resolve(a.ID, false), storage.ErrApprovalNotFound)

	pending, err = s.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.Delete(a.ID))
	_, err = s.Status(a.ID)
	assert.ErrorIs(t, err, storage.ErrApprovalNotFound)
}
