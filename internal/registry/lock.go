package registry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// lockRetryInterval is how often TryLockContext retries acquiring the
// advisory lock while waiting for ctx to resolve.
const lockRetryInterval = 25 * time.Millisecond

// acquireFileLock takes an exclusive advisory lock on path, creating its
// parent directory if necessary. It blocks (respecting ctx) until the
// lock is acquired, ctx is cancelled, or the lock is held by a process
// that never releases it and ctx has no deadline, in which case the
// caller's own timeout is what bounds the wait.
func acquireFileLock(ctx context.Context, path string) (release func() error, err error) {
	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		return nil, ragerrors.Wrap(ragerrors.KindFatal, mkErr)
	}

	fl := flock.New(path)
	locked, lockErr := fl.TryLockContext(ctx, lockRetryInterval)
	if lockErr != nil {
		return nil, ragerrors.Wrap(ragerrors.KindTransient, lockErr)
	}
	if !locked {
		return nil, ragerrors.New(ragerrors.KindTransient, "project write lock held by another process", nil)
	}
	return fl.Unlock, nil
}
