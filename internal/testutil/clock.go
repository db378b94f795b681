package testutil

import (
	"fmt"
	"sync"
	"time"

	"okr-go/internal/okr"
)

var (
	_ okr.Clock       = (*StubClock)(nil)
	_ okr.IDGenerator = (*StubIDGenerator)(nil)
)

// StubClock is an okr.Clock that only moves when told to.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock returns a clock stopped at t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock starts at the beginning of a working day in Q1 2025.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps to t, backwards if need be.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// StubIDGenerator hands out "id-1", "id-2", ... so draft rows are
// predictable ("draft-id-1").
type StubIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewStubIDGenerator starts at "id-1".
func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{prefix: "id-"}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}
