// Package cache holds derived results that are only valid for a range of
// ledger versions.
//
// An entry is keyed by a scope (a portfolio) and an as-of date and is valid
// from the version it was computed at through the last version known not to
// change it. Appending to the ledger at a date d and version v drops the
// entries dated on or after d, and extends the entries dated before d that
// were valid at v-1.
package cache

import (
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type entry[T any] struct {
	from, through int64
	value         T
}

// Versioned is safe for concurrent use. Cached values are shared between
// readers and must not be modified.
type Versioned[T any] struct {
	mu    sync.Mutex // serializes Put and Append
	items *gocache.Cache
}

// New creates a cache whose entries expire after ttl. Expired entries are
// removed every cleanup interval.
func New[T any](ttl, cleanup time.Duration) *Versioned[T] {
	return &Versioned[T]{items: gocache.New(ttl, cleanup)}
}

// key sorts like the date when date is formatted as YYYY-MM-DD.
func key(scope, date string) string { return scope + "|" + date }

// Get returns the value computed for scope and date, if it is valid at version.
func (c *Versioned[T]) Get(scope, date string, version int64) (T, bool) {
	var zero T
	x, ok := c.items.Get(key(scope, date))
	if !ok {
		return zero, false
	}
	e := x.(entry[T])
	if version < e.from || version > e.through {
		return zero, false
	}
	return e.value, true
}

// Put records value as computed for scope and date at version.
// An entry valid for a later version is kept.
func (c *Versioned[T]) Put(scope, date string, version int64, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(scope, date)
	if x, ok := c.items.Get(k); ok {
		if e := x.(entry[T]); e.through > version {
			return
		}
	}
	c.items.SetDefault(k, entry[T]{from: version, through: version, value: value})
}

// Append records that the ledger of scope reached version with a record
// dated date.
func (c *Versioned[T]) Append(scope, date string, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := scope + "|"
	for k, item := range c.items.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		e := item.Object.(entry[T])
		switch {
		case strings.TrimPrefix(k, prefix) >= date:
			c.items.Delete(k)
		case e.through == version-1:
			e.through = version
			c.items.SetDefault(k, e)
		}
	}
}

// Len returns the number of entries, expired ones included until cleanup.
func (c *Versioned[T]) Len() int { return c.items.ItemCount() }

// Flush removes every entry.
func (c *Versioned[T]) Flush() { c.items.Flush() }
