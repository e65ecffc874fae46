package corectx

import "github.com/ragline/ragline/internal/registry"

// AddProject implements project.add.
func (c *Context) AddProject(name, path string) (*registry.Project, error) {
	return c.registry.Add(name, path)
}

// ActivateProject implements project.activate.
func (c *Context) ActivateProject(selector string) (*registry.Project, error) {
	return c.registry.Activate(selector)
}

// RemoveProject implements project.remove: deregister the project and
// evict (but do not delete from disk) any loaded in-memory state for it,
// so a later project.add for the same path starts from a clean load
// rather than handing back stale open stores.
func (c *Context) RemoveProject(selector string) error {
	proj, err := c.resolve(selector, "")
	if err != nil {
		return err
	}
	if err := c.registry.Remove(selector); err != nil {
		return err
	}
	c.dropProject(proj.ID)
	return nil
}

// ListProjects implements project.list.
func (c *Context) ListProjects() []*registry.Project {
	return c.registry.List()
}
