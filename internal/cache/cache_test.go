package cache_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"okr-go/internal/cache"
)

var listKey = cache.Key{"okrs"}

func TestKey_HasPrefix(t *testing.T) {
	tests := []struct {
		key    cache.Key
		prefix cache.Key
		want   bool
	}{
		{cache.Key{"comments", "1"}, cache.Key{"comments"}, true},
		{cache.Key{"comments", "1"}, cache.Key{"comments", "1"}, true},
		{cache.Key{"comments", "1"}, cache.Key{"comments", "2"}, false},
		{cache.Key{"okrs"}, cache.Key{"okrs", "x"}, false},
		{cache.Key{"okrs"}, cache.Key{}, true},
	}
	for _, tt := range tests {
		if got := tt.key.HasPrefix(tt.prefix); got != tt.want {
			t.Errorf("%v.HasPrefix(%v) = %v, want %v", tt.key, tt.prefix, got, tt.want)
		}
	}
}

func TestQuery(t *testing.T) {
	t.Run("caches fresh data", func(t *testing.T) {
		c := cache.New()
		var calls atomic.Int32
		fetch := func(context.Context) ([]string, error) {
			calls.Add(1)
			return []string{"a"}, nil
		}

		for i := 0; i < 3; i++ {
			got, err := cache.Query(context.Background(), c, listKey, fetch)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if !reflect.DeepEqual(got, []string{"a"}) {
				t.Errorf("Query() = %v", got)
			}
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("fetch called %d times, want 1", n)
		}
	})

	t.Run("coalesces concurrent fetches of one key", func(t *testing.T) {
		c := cache.New()
		release := make(chan struct{})
		var calls atomic.Int32
		fetch := func(context.Context) (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		}

		const n = 8
		var wg sync.WaitGroup
		results := make([]int, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := cache.Query(context.Background(), c, listKey, fetch)
				if err != nil {
					t.Errorf("Query() error = %v", err)
				}
				results[i] = v
			}(i)
		}

		waitFor(t, func() bool { return c.State(listKey).Status == cache.StatusLoading })
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		if got := calls.Load(); got != 1 {
			t.Errorf("fetch called %d times, want 1", got)
		}
		for i, v := range results {
			if v != 42 {
				t.Errorf("results[%d] = %d, want 42", i, v)
			}
		}
	})

	t.Run("refetches after an error", func(t *testing.T) {
		c := cache.New()
		fail := true
		fetch := func(context.Context) (string, error) {
			if fail {
				return "", errors.New("boom")
			}
			return "ok", nil
		}

		if _, err := cache.Query(context.Background(), c, listKey, fetch); err == nil {
			t.Fatal("Query() expected error")
		}
		if st := c.State(listKey); st.Status != cache.StatusError {
			t.Errorf("Status = %v, want error", st.Status)
		}

		fail = false
		got, err := cache.Query(context.Background(), c, listKey, fetch)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if got != "ok" {
			t.Errorf("Query() = %q", got)
		}
	})

	t.Run("waiter leaving does not cancel the fetch for others", func(t *testing.T) {
		c := cache.New()
		release := make(chan struct{})
		fetch := func(ctx context.Context) (string, error) {
			select {
			case <-release:
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		leaverErr := make(chan error, 1)
		go func() {
			_, err := cache.Query(ctx, c, listKey, fetch)
			leaverErr <- err
		}()
		waitFor(t, func() bool { return c.State(listKey).Status == cache.StatusLoading })

		stayer := make(chan string, 1)
		go func() {
			v, _ := cache.Query(context.Background(), c, listKey, fetch)
			stayer <- v
		}()
		time.Sleep(20 * time.Millisecond)

		cancel()
		if err := <-leaverErr; !errors.Is(err, context.Canceled) {
			t.Errorf("leaving waiter error = %v, want context.Canceled", err)
		}
		close(release)
		if v := <-stayer; v != "done" {
			t.Errorf("remaining waiter got %q, want done", v)
		}
	})

	t.Run("last waiter leaving cancels the fetch", func(t *testing.T) {
		c := cache.New()
		cancelled := make(chan struct{})
		fetch := func(ctx context.Context) (string, error) {
			<-ctx.Done()
			close(cancelled)
			return "", ctx.Err()
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = cache.Query(ctx, c, listKey, fetch)
		}()
		waitFor(t, func() bool { return c.State(listKey).Status == cache.StatusLoading })
		cancel()
		<-done

		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("fetch was not cancelled")
		}
		waitFor(t, func() bool { return c.State(listKey).Status == cache.StatusIdle })
		if st := c.State(listKey); st.Err != nil {
			t.Errorf("cancelled fetch recorded error %v", st.Err)
		}
	})
}

func TestInvalidate(t *testing.T) {
	t.Run("next query refetches", func(t *testing.T) {
		c := cache.New()
		var n atomic.Int32
		fetch := func(context.Context) (int32, error) { return n.Add(1), nil }

		first, _ := cache.Query(context.Background(), c, listKey, fetch)
		c.Invalidate(listKey)
		if st := c.State(listKey); !st.Stale {
			t.Error("entry not stale after Invalidate")
		}
		second, _ := cache.Query(context.Background(), c, listKey, fetch)
		if first != 1 || second != 2 {
			t.Errorf("got %d then %d, want 1 then 2", first, second)
		}
	})

	t.Run("matches by prefix", func(t *testing.T) {
		c := cache.New()
		fetch := func(context.Context) (string, error) { return "x", nil }
		_, _ = cache.Query(context.Background(), c, cache.Key{"comments", "1"}, fetch)
		_, _ = cache.Query(context.Background(), c, cache.Key{"comments", "2"}, fetch)
		_, _ = cache.Query(context.Background(), c, listKey, fetch)

		c.Invalidate(cache.Key{"comments"})

		if !c.State(cache.Key{"comments", "1"}).Stale || !c.State(cache.Key{"comments", "2"}).Stale {
			t.Error("comment entries not stale")
		}
		if c.State(listKey).Stale {
			t.Error("unrelated entry marked stale")
		}
	})

	t.Run("in-flight result from before invalidation is discarded", func(t *testing.T) {
		c := cache.New()
		release := make(chan struct{})
		var n atomic.Int32
		fetch := func(context.Context) (string, error) {
			if n.Add(1) == 1 {
				<-release
				return "old", nil
			}
			return "new", nil
		}

		oldDone := make(chan string, 1)
		go func() {
			v, _ := cache.Query(context.Background(), c, listKey, fetch)
			oldDone <- v
		}()
		waitFor(t, func() bool { return c.State(listKey).Status == cache.StatusLoading })

		c.Invalidate(listKey)
		close(release)
		if v := <-oldDone; v != "old" {
			t.Errorf("original waiter got %q, want old", v)
		}
		if st := c.State(listKey); st.HasData {
			t.Errorf("stale in-flight result landed in cache: %v", st.Data)
		}

		got, _ := cache.Query(context.Background(), c, listKey, fetch)
		if got != "new" {
			t.Errorf("Query() = %q, want new", got)
		}
	})
}

func TestObserve(t *testing.T) {
	t.Run("fetches while observed and refetches on invalidation", func(t *testing.T) {
		c := cache.New()
		var n atomic.Int32
		fetch := func(context.Context) (any, error) { return n.Add(1), nil }

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		states := c.Observe(ctx, listKey, fetch)

		waitForState(t, states, func(s cache.State) bool {
			return s.Status == cache.StatusSuccess && s.Data == int32(1)
		})

		c.Invalidate(listKey)
		waitForState(t, states, func(s cache.State) bool {
			return s.Status == cache.StatusSuccess && s.Data == int32(2)
		})
	})

	t.Run("closes the channel when ctx ends", func(t *testing.T) {
		c := cache.New()
		ctx, cancel := context.WithCancel(context.Background())
		states := c.Observe(ctx, listKey, func(context.Context) (any, error) { return "x", nil })
		cancel()

		timeout := time.After(time.Second)
		for {
			select {
			case _, ok := <-states:
				if !ok {
					return
				}
			case <-timeout:
				t.Fatal("channel not closed")
			}
		}
	})

	t.Run("unobserved entries are not refetched on invalidation", func(t *testing.T) {
		c := cache.New()
		var n atomic.Int32
		ctx, cancel := context.WithCancel(context.Background())
		states := c.Observe(ctx, listKey, func(context.Context) (any, error) { return n.Add(1), nil })
		waitForState(t, states, func(s cache.State) bool { return s.Status == cache.StatusSuccess })
		cancel()
		for range states {
		}

		c.Invalidate(listKey)
		time.Sleep(20 * time.Millisecond)
		if got := n.Load(); got != 1 {
			t.Errorf("fetch called %d times, want 1", got)
		}
	})
}

type memoryPersister struct {
	mu    sync.Mutex
	saved map[string][]byte
	at    map[string]time.Time
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{saved: map[string][]byte{}, at: map[string]time.Time{}}
}

func (p *memoryPersister) SaveSnapshot(key string, payload []byte, fetchedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[key] = payload
	p.at[key] = fetchedAt
	return nil
}

func (p *memoryPersister) LoadSnapshot(key string) ([]byte, time.Time, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.saved[key]
	return b, p.at[key], ok, nil
}

func TestPeek(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("returns cached data without fetching", func(t *testing.T) {
		c := cache.New(cache.WithClock(clock))
		_, _ = cache.Query(context.Background(), c, listKey, func(context.Context) ([]string, error) {
			return []string{"a", "b"}, nil
		})

		got, err := cache.Peek[[]string](c, listKey)
		if err != nil {
			t.Fatalf("Peek() error = %v", err)
		}
		if !got.Found || got.Stale || !got.UpdatedAt.Equal(now) {
			t.Errorf("Peek() = %+v", got)
		}
		if !reflect.DeepEqual(got.Data, []string{"a", "b"}) {
			t.Errorf("Data = %v", got.Data)
		}
	})

	t.Run("missing entry without persister", func(t *testing.T) {
		got, err := cache.Peek[[]string](cache.New(), listKey)
		if err != nil {
			t.Fatalf("Peek() error = %v", err)
		}
		if got.Found {
			t.Error("Found = true for empty cache")
		}
	})

	t.Run("hydrates a cold cache from snapshots", func(t *testing.T) {
		p := newMemoryPersister()
		warm := cache.New(cache.WithClock(clock), cache.WithPersister(p))
		_, err := cache.Query(context.Background(), warm, listKey, func(context.Context) ([]string, error) {
			return []string{"a"}, nil
		})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		waitFor(t, func() bool {
			_, _, ok, _ := p.LoadSnapshot(listKey.String())
			return ok
		})

		cold := cache.New(cache.WithPersister(p))
		got, err := cache.Peek[[]string](cold, listKey)
		if err != nil {
			t.Fatalf("Peek() error = %v", err)
		}
		if !got.Found || !got.Stale || !got.UpdatedAt.Equal(now) {
			t.Errorf("Peek() = %+v", got)
		}
		if !reflect.DeepEqual(got.Data, []string{"a"}) {
			t.Errorf("Data = %v", got.Data)
		}
		if st := cold.State(listKey); !st.HasData || !st.Stale {
			t.Errorf("snapshot not seeded as stale data: %+v", st)
		}
	})
}

func TestRemove(t *testing.T) {
	c := cache.New()
	_, _ = cache.Query(context.Background(), c, listKey, func(context.Context) (string, error) { return "x", nil })
	c.Remove(listKey)
	if st := c.State(listKey); st.HasData || st.Status != cache.StatusIdle {
		t.Errorf("State() after Remove = %+v", st)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitForState(t *testing.T, states <-chan cache.State, match func(cache.State) bool) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-states:
			if !ok {
				t.Fatal("state channel closed")
			}
			if match(s) {
				return
			}
		case <-timeout:
			t.Fatal("expected state not observed")
		}
	}
}
