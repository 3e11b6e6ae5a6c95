package project

import (
	"sync"

	"github.com/roomify/backend/internal/models"
)

// Collection is the page-level project list, newest first. The only
// mutation is Prepend; readers get copies.
type Collection struct {
	mu    sync.RWMutex
	items []models.ProjectRecord
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Prepend puts rec at the front.
func (c *Collection) Prepend(rec models.ProjectRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]models.ProjectRecord, 0, len(c.items)+1)
	next = append(next, rec)
	next = append(next, c.items...)
	c.items = next
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (c *Collection) List(limit int) []models.ProjectRecord {
	c.mu.RLock()
	items := c.items
	c.mu.RUnlock()

	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]models.ProjectRecord, limit)
	copy(out, items[:limit])
	return out
}

// First returns the newest record.
func (c *Collection) First() (models.ProjectRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.items) == 0 {
		return models.ProjectRecord{}, false
	}
	return c.items[0], true
}

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
