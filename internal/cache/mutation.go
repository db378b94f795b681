package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MutationState is the lifecycle of an optimistic edit.
type MutationState int

const (
	MutationPending MutationState = iota
	MutationCommitted
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationPending:
		return "pending"
	case MutationCommitted:
		return "committed"
	case MutationRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// ErrMutationSettled is returned when a committed or rolled-back mutation is
// asked to transition again.
var ErrMutationSettled = errors.New("mutation already settled")

type snapshot struct {
	data      any
	hasData   bool
	err       error
	stale     bool
	updatedAt time.Time
}

// Mutation is an optimistic edit of one cache entry.
type Mutation struct {
	c     *Cache
	key   Key
	prev  snapshot
	state MutationState
}

// Optimistic applies update to the cached value of key right away and
// returns the pending mutation. Any fetch in flight for key is detached
// first so it cannot overwrite the optimistic value. When the entry holds
// no data update is not called.
func Optimistic[T any](c *Cache, key Key, update func(T) T) (*Mutation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	c.detachLocked(e)

	m := &Mutation{
		c:   c,
		key: key,
		prev: snapshot{
			data:      e.data,
			hasData:   e.hasData,
			err:       e.err,
			stale:     e.stale,
			updatedAt: e.updatedAt,
		},
	}
	if !e.hasData {
		return m, nil
	}

	var cur T
	if e.data != nil {
		t, ok := e.data.(T)
		if !ok {
			return nil, fmt.Errorf("cache entry %s holds %T, not %T", key, e.data, cur)
		}
		cur = t
	}
	e.data = update(cur)
	c.notifyLocked(e)
	c.logger.Debug("optimistic update", "key", key.String())
	return m, nil
}

// State reports where the mutation is in its lifecycle.
func (m *Mutation) State() MutationState {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	return m.state
}

// Commit settles the mutation and invalidates its key so the server copy
// replaces the optimistic one.
func (m *Mutation) Commit() error {
	m.c.mu.Lock()
	if m.state != MutationPending {
		m.c.mu.Unlock()
		return ErrMutationSettled
	}
	m.state = MutationCommitted
	m.c.mu.Unlock()

	m.c.Invalidate(m.key)
	return nil
}

// Rollback restores the entry exactly as it was before the mutation.
func (m *Mutation) Rollback() error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if m.state != MutationPending {
		return ErrMutationSettled
	}
	m.state = MutationRolledBack

	e := m.c.entryLocked(m.key)
	m.c.detachLocked(e)
	e.data = m.prev.data
	e.hasData = m.prev.hasData
	e.err = m.prev.err
	e.stale = m.prev.stale
	e.updatedAt = m.prev.updatedAt
	m.c.notifyLocked(e)
	m.c.logger.Debug("rolled back optimistic update", "key", m.key.String())
	return nil
}

// Run executes do, committing on success and rolling back on failure.
func (m *Mutation) Run(ctx context.Context, do func(context.Context) error) error {
	if err := do(ctx); err != nil {
		if rerr := m.Rollback(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return m.Commit()
}
