package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWriteLock_ExclusiveUntilReleased(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)

	p, err := r.Add("proj", filepath.Join(dir, "proj"))
	require.NoError(t, err)

	release, err := r.AcquireWriteLock(context.Background(), p.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = r.AcquireWriteLock(ctx, p.ID)
	assert.Error(t, err, "lock is already held")

	require.NoError(t, release())

	release2, err := r.AcquireWriteLock(context.Background(), p.ID)
	require.NoError(t, err)
	require.NoError(t, release2())
}
