package corectx

import (
	"context"

	"github.com/ragline/ragline/internal/querycache"
)

// CacheClear implements cache.clear for a single project's query cache.
func (c *Context) CacheClear(ctx context.Context, projectID string) error {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	ps.cache.Clear(querycache.ClearThisProject, projectID)
	return nil
}

// CacheStatus implements cache.status.
func (c *Context) CacheStatus(ctx context.Context, projectID string) (CacheStatusResult, error) {
	ps, err := c.projectByID(ctx, projectID)
	if err != nil {
		return CacheStatusResult{}, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return CacheStatusResult{ExactEntries: ps.cache.Len(projectID)}, nil
}
