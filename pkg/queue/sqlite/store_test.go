package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/syncq/pkg/queue"
	"github.com/bft-labs/syncq/pkg/queue/queuetest"
	"github.com/bft-labs/syncq/pkg/queue/sqlite"
)

func TestStore_Conformance(t *testing.T) {
	queuetest.Run(t, func(path string, opts ...queue.Option) queue.Store {
		return sqlite.New(path, opts...)
	})
}

func TestStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "queue.db")
	s := sqlite.New(path)
	require.NoError(t, s.Initialize(context.Background()))
	defer s.Close()

	assert.Equal(t, path, s.Path())
	_, err := s.Add(context.Background(), queue.Mutation{
		OwnerID:   "u1",
		Resource:  "todos",
		Operation: queue.OpCreate,
		Payload:   []byte(`{}`),
	})
	require.NoError(t, err)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s := sqlite.New(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.GetAll(context.Background())
	assert.ErrorIs(t, err, queue.ErrNotInitialized)
}
