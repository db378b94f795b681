// Package cache is the client's query cache. Entries are keyed by resource
// identity; concurrent reads of one key share a single fetch; mutations
// either invalidate keys or edit them optimistically with exact rollback.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Key identifies a cached resource, e.g. {"okrs"} or {"comments", id}.
type Key []string

func (k Key) String() string { return strings.Join(k, "/") }

// HasPrefix reports whether k starts with every element of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Status is the fetch status of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is what an observer sees of an entry.
type State struct {
	Key       Key
	Status    Status
	Data      any
	HasData   bool
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

// Fetcher loads the value of one key.
type Fetcher func(ctx context.Context) (any, error)

// Logger is the subset of structured logging the cache uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Persister stores the last successful payload of each key so a cold start
// can show stale data without the network.
type Persister interface {
	SaveSnapshot(key string, payload []byte, fetchedAt time.Time) error
	LoadSnapshot(key string) (payload []byte, fetchedAt time.Time, found bool, err error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithPersister enables snapshot persistence.
func WithPersister(p Persister) Option {
	return func(c *Cache) { c.persister = p }
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	now       func() time.Time
	logger    Logger
	persister Persister
}

type entry struct {
	key       Key
	data      any
	hasData   bool
	err       error
	stale     bool
	updatedAt time.Time
	fetch     Fetcher
	inflight  *call
	observers map[int]chan State
	nextObs   int
}

// call is one in-flight fetch shared by every waiter of a key.
type call struct {
	done    chan struct{}
	val     any
	err     error
	waiters int
	cancel  context.CancelFunc
	// detached calls still deliver to their waiters but no longer write
	// into the entry.
	detached bool
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entryLocked returns the entry for key, creating it. c.mu must be held.
func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...), observers: make(map[int]chan State)}
		c.entries[id] = e
	}
	return e
}

// Fetch returns the fresh value of key, calling fetch when the entry is
// missing, stale or failed. Concurrent callers share one in-flight fetch.
// A caller whose ctx ends stops waiting; the fetch itself is cancelled only
// when nobody is waiting or observing any more.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetch = fetch
	if e.hasData && !e.stale && e.err == nil {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}
	cl := e.inflight
	if cl == nil {
		cl = c.startLocked(ctx, e)
	} else {
		c.logger.Debug("joining in-flight fetch", "key", key.String())
	}
	cl.waiters++
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		c.mu.Lock()
		cl.waiters--
		c.maybeCancelLocked(e, cl)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// startLocked launches a fetch for e. c.mu must be held.
func (c *Cache) startLocked(parent context.Context, e *entry) *call {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	cl := &call{done: make(chan struct{}), cancel: cancel}
	e.inflight = cl
	c.notifyLocked(e)
	c.logger.Debug("fetching", "key", e.key.String())
	go c.run(ctx, e, cl, e.fetch)
	return cl
}

func (c *Cache) run(ctx context.Context, e *entry, cl *call, fetch Fetcher) {
	val, err := fetch(ctx)
	cancelled := ctx.Err() != nil
	cl.cancel()

	var payload []byte
	if err == nil && c.persister != nil {
		if b, merr := json.Marshal(val); merr != nil {
			c.logger.Warn("encoding snapshot", "key", e.key.String(), "error", merr)
		} else {
			payload = b
		}
	}

	c.mu.Lock()
	cl.val, cl.err = val, err
	stored := false
	if e.inflight == cl {
		e.inflight = nil
	}
	if !cl.detached {
		cl.detached = true
		switch {
		case err == nil:
			e.data, e.hasData, e.err, e.stale = val, true, nil, false
			e.updatedAt = c.now()
			stored = true
		case cancelled && errors.Is(err, context.Canceled):
			// Superseded: keep whatever the entry held before.
		default:
			e.err = err
		}
		c.notifyLocked(e)
	}
	fetchedAt := e.updatedAt
	c.mu.Unlock()

	// Waiters are released only once the snapshot is durable.
	if stored && payload != nil {
		if perr := c.persister.SaveSnapshot(e.key.String(), payload, fetchedAt); perr != nil {
			c.logger.Warn("saving snapshot", "key", e.key.String(), "error", perr)
		}
	}
	close(cl.done)
}

// maybeCancelLocked cancels cl once nobody waits on or observes it.
func (c *Cache) maybeCancelLocked(e *entry, cl *call) {
	if cl.waiters > 0 {
		return
	}
	if e.inflight == cl {
		if len(e.observers) > 0 {
			return
		}
		e.inflight = nil
		c.notifyLocked(e)
	}
	cl.detached = true
	cl.cancel()
	c.logger.Debug("fetch abandoned", "key", e.key.String())
}

// detachLocked stops the in-flight fetch of e from writing into it.
func (c *Cache) detachLocked(e *entry) {
	if e.inflight == nil {
		return
	}
	cl := e.inflight
	cl.detached = true
	e.inflight = nil
	if cl.waiters == 0 {
		cl.cancel()
	}
}

// Invalidate marks every entry under prefix stale. Entries with live
// observers are re-fetched right away; the rest on their next Fetch.
// A fetch already in flight is detached so its older result cannot land.
func (c *Cache) Invalidate(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		c.logger.Debug("invalidating", "key", e.key.String())
		e.stale = true
		c.detachLocked(e)
		if len(e.observers) > 0 && e.fetch != nil {
			c.startLocked(context.Background(), e)
			continue
		}
		c.notifyLocked(e)
	}
}

// Remove drops every entry under prefix, e.g. after logout.
func (c *Cache) Remove(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		c.detachLocked(e)
		if len(e.observers) == 0 {
			delete(c.entries, id)
			continue
		}
		e.data, e.hasData, e.err, e.stale = nil, false, nil, false
		c.notifyLocked(e)
	}
}

// State returns the current state of key without fetching.
func (c *Cache) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return State{Key: key, Status: StatusIdle}
	}
	return e.stateLocked()
}

func (e *entry) stateLocked() State {
	s := State{
		Key:       e.key,
		Data:      e.data,
		HasData:   e.hasData,
		Err:       e.err,
		Stale:     e.stale,
		UpdatedAt: e.updatedAt,
	}
	switch {
	case e.inflight != nil:
		s.Status = StatusLoading
	case e.err != nil:
		s.Status = StatusError
	case e.hasData:
		s.Status = StatusSuccess
	default:
		s.Status = StatusIdle
	}
	return s
}

// notifyLocked pushes the latest state to every observer of e. Each observer
// channel holds only the newest state.
func (c *Cache) notifyLocked(e *entry) {
	if len(e.observers) == 0 {
		return
	}
	s := e.stateLocked()
	for _, ch := range e.observers {
		for {
			select {
			case ch <- s:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Observe subscribes to key while ctx is alive. The current state is sent
// first and a fetch is started when the entry is not fresh. The channel is
// closed when ctx ends; if nothing else needs the in-flight fetch it is
// cancelled.
func (c *Cache) Observe(ctx context.Context, key Key, fetch Fetcher) <-chan State {
	ch := make(chan State, 1)

	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetch = fetch
	id := e.nextObs
	e.nextObs++
	e.observers[id] = ch
	ch <- e.stateLocked()
	if e.inflight == nil && (!e.hasData || e.stale || e.err != nil) {
		c.startLocked(ctx, e)
	}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(e.observers, id)
		if cl := e.inflight; cl != nil {
			c.maybeCancelLocked(e, cl)
		}
		close(ch)
		c.mu.Unlock()
	}()

	return ch
}

// Query is the typed form of Cache.Fetch.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		return v, err
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T, not %T", key, v, zero)
	}
	return t, nil
}

// Cached is a typed view of an entry returned by Peek.
type Cached[T any] struct {
	Data      T
	Found     bool
	Stale     bool
	UpdatedAt time.Time
}

// Peek returns the cached value of key without fetching. When the entry is
// missing and a persister is configured, the last snapshot is loaded and
// seeded into the cache as stale data.
func Peek[T any](c *Cache, key Key) (Cached[T], error) {
	var out Cached[T]

	c.mu.Lock()
	e, ok := c.entries[key.String()]
	if ok && e.hasData {
		out.Found, out.Stale, out.UpdatedAt = true, e.stale, e.updatedAt
		data := e.data
		c.mu.Unlock()
		if data != nil {
			t, ok := data.(T)
			if !ok {
				return Cached[T]{}, fmt.Errorf("cache entry %s holds %T, not %T", key, data, out.Data)
			}
			out.Data = t
		}
		return out, nil
	}
	c.mu.Unlock()

	if c.persister == nil {
		return out, nil
	}
	payload, fetchedAt, found, err := c.persister.LoadSnapshot(key.String())
	if err != nil {
		return out, fmt.Errorf("loading snapshot: %w", err)
	}
	if !found {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out.Data); err != nil {
		return Cached[T]{}, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	out.Found, out.Stale, out.UpdatedAt = true, true, fetchedAt

	c.mu.Lock()
	e = c.entryLocked(key)
	if !e.hasData {
		e.data, e.hasData, e.stale, e.updatedAt = out.Data, true, true, fetchedAt
		c.notifyLocked(e)
	}
	c.mu.Unlock()
	return out, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
