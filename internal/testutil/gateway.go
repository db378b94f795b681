package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"okr-go/internal/okr"
)

// GatewayCall records one call made to a FakeGateway.
type GatewayCall struct {
	Method string
	ID     string
	Body   any
}

// FakeGateway is an in-memory okr.Gateway. Failures are queued per method
// with FailNext and consumed in order.
type FakeGateway struct {
	mu            sync.Mutex
	objectives    []okr.Objective
	notifications []okr.Notification
	calls         []GatewayCall
	failures      map[string][]error
	ids           *StubIDGenerator
	clock         *StubClock

	// ListGate, when set, blocks ListObjectives until it is closed or ctx ends.
	ListGate chan struct{}
}

// NewFakeGateway returns a gateway holding the given objectives.
func NewFakeGateway(objectives ...okr.Objective) *FakeGateway {
	return &FakeGateway{
		objectives: slices.Clone(objectives),
		failures:   make(map[string][]error),
		ids:        NewStubIDGenerator(),
		clock:      FixedClock(),
	}
}

// FailNext makes the next call to method return err.
func (g *FakeGateway) FailNext(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[method] = append(g.failures[method], err)
}

// Calls returns every recorded call.
func (g *FakeGateway) Calls() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// CallCount returns the number of calls made to method.
func (g *FakeGateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// SetNotifications replaces the notification list.
func (g *FakeGateway) SetNotifications(list []okr.Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notifications = slices.Clone(list)
}

// Objectives returns a copy of the stored objectives.
func (g *FakeGateway) Objectives() []okr.Objective {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.objectives)
}

// record logs the call and pops a queued failure. g.mu must be held.
func (g *FakeGateway) record(method, id string, body any) error {
	g.calls = append(g.calls, GatewayCall{Method: method, ID: id, Body: body})
	if q := g.failures[method]; len(q) > 0 {
		g.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (g *FakeGateway) indexOf(id string) int {
	return slices.IndexFunc(g.objectives, func(o okr.Objective) bool { return o.ID == id })
}

func (g *FakeGateway) ListObjectives(ctx context.Context) ([]okr.Objective, error) {
	g.mu.Lock()
	gate := g.ListGate
	err := g.record("ListObjectives", "", nil)
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]okr.Objective, len(g.objectives))
	for i, o := range g.objectives {
		o.KeyResults = slices.Clone(o.KeyResults)
		o.Comments = slices.Clone(o.Comments)
		out[i] = o
	}
	return out, nil
}

func (g *FakeGateway) CreateObjective(_ context.Context, in okr.ObjectiveInput) (*okr.Objective, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("CreateObjective", "", in); err != nil {
		return nil, err
	}
	now := g.clock.Now()
	o := okr.Objective{
		ID:          "okr-" + g.ids.New(),
		Title:       in.Title,
		Description: in.Description,
		Responsible: in.Responsible,
		DueDate:     in.DueDate,
		Status:      okr.StatusOnTrack,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.objectives = append(g.objectives, o)
	return &o, nil
}

func (g *FakeGateway) UpdateObjective(_ context.Context, id string, in okr.ObjectiveInput) (*okr.Objective, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("UpdateObjective", id, in); err != nil {
		return nil, err
	}
	i := g.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("objective %s: %w", id, okr.ErrNotFound)
	}
	o := &g.objectives[i]
	o.Title, o.Description, o.Responsible, o.DueDate = in.Title, in.Description, in.Responsible, in.DueDate
	o.UpdatedAt = g.clock.Now()
	out := *o
	out.KeyResults, out.Comments = nil, nil
	return &out, nil
}

func (g *FakeGateway) DeleteObjective(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("DeleteObjective", id, nil); err != nil {
		return err
	}
	i := g.indexOf(id)
	if i < 0 {
		return fmt.Errorf("objective %s: %w", id, okr.ErrNotFound)
	}
	g.objectives = slices.Delete(g.objectives, i, i+1)
	return nil
}

func (g *FakeGateway) CreateKeyResult(_ context.Context, okrID string, in okr.KeyResultInput) (*okr.KeyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("CreateKeyResult", okrID, in); err != nil {
		return nil, err
	}
	i := g.indexOf(okrID)
	if i < 0 {
		return nil, fmt.Errorf("objective %s: %w", okrID, okr.ErrNotFound)
	}
	kr := okr.KeyResult{
		ID:           "kr-" + g.ids.New(),
		Title:        in.Title,
		Target:       in.Target,
		CurrentValue: in.CurrentValue,
		Unit:         in.Unit,
		OKRID:        okrID,
	}
	g.objectives[i].KeyResults = append(g.objectives[i].KeyResults, kr)
	return &kr, nil
}

func (g *FakeGateway) findKeyResult(id string) (*okr.KeyResult, int, int) {
	for i := range g.objectives {
		for j := range g.objectives[i].KeyResults {
			if g.objectives[i].KeyResults[j].ID == id {
				return &g.objectives[i].KeyResults[j], i, j
			}
		}
	}
	return nil, -1, -1
}

func (g *FakeGateway) UpdateKeyResult(_ context.Context, id string, in okr.KeyResultInput) (*okr.KeyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("UpdateKeyResult", id, in); err != nil {
		return nil, err
	}
	kr, _, _ := g.findKeyResult(id)
	if kr == nil {
		return nil, fmt.Errorf("key result %s: %w", id, okr.ErrNotFound)
	}
	kr.Title, kr.Target, kr.Unit, kr.CurrentValue = in.Title, in.Target, in.Unit, in.CurrentValue
	out := *kr
	return &out, nil
}

func (g *FakeGateway) DeleteKeyResult(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("DeleteKeyResult", id, nil); err != nil {
		return err
	}
	_, i, j := g.findKeyResult(id)
	if i < 0 {
		return fmt.Errorf("key result %s: %w", id, okr.ErrNotFound)
	}
	g.objectives[i].KeyResults = slices.Delete(g.objectives[i].KeyResults, j, j+1)
	return nil
}

func (g *FakeGateway) ListComments(_ context.Context, okrID string) ([]okr.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("ListComments", okrID, nil); err != nil {
		return nil, err
	}
	i := g.indexOf(okrID)
	if i < 0 {
		return nil, fmt.Errorf("objective %s: %w", okrID, okr.ErrNotFound)
	}
	return slices.Clone(g.objectives[i].Comments), nil
}

func (g *FakeGateway) CreateComment(_ context.Context, okrID string, in okr.CommentInput) (*okr.Comment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("CreateComment", okrID, in); err != nil {
		return nil, err
	}
	i := g.indexOf(okrID)
	if i < 0 {
		return nil, fmt.Errorf("objective %s: %w", okrID, okr.ErrNotFound)
	}
	now := g.clock.Now()
	c := okr.Comment{
		ID:        "comment-" + g.ids.New(),
		Content:   in.Content,
		OKRID:     okrID,
		UserID:    "user-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.objectives[i].Comments = append(g.objectives[i].Comments, c)
	return &c, nil
}

func (g *FakeGateway) ListNotifications(context.Context) ([]okr.Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record("ListNotifications", "", nil); err != nil {
		return nil, err
	}
	return slices.Clone(g.notifications), nil
}
