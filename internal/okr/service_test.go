package okr_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"okr-go/internal/cache"
	"okr-go/internal/okr"
	"okr-go/internal/testutil"
)

func newService(t *testing.T, objectives ...okr.Objective) (*okr.Service, *testutil.FakeGateway, *cache.Cache) {
	t.Helper()
	gw := testutil.NewFakeGateway(objectives...)
	c := cache.New()
	return okr.NewService(gw, c, testutil.NewStubIDGenerator(), okr.NewNopLogger()), gw, c
}

func TestService_Objectives(t *testing.T) {
	t.Run("serves repeated reads from cache", func(t *testing.T) {
		svc, gw, _ := newService(t, sampleObjectives()...)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			if _, err := svc.Objectives(ctx); err != nil {
				t.Fatalf("Objectives() error = %v", err)
			}
		}
		if n := gw.CallCount("ListObjectives"); n != 1 {
			t.Errorf("ListObjectives called %d times, want 1", n)
		}
	})

	t.Run("concurrent reads share one request", func(t *testing.T) {
		svc, gw, c := newService(t, sampleObjectives()...)
		gw.ListGate = make(chan struct{})

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				list, err := svc.Objectives(context.Background())
				if err != nil || len(list) != 4 {
					t.Errorf("Objectives() = %d items, %v", len(list), err)
				}
			}()
		}
		deadline := time.Now().Add(2 * time.Second)
		for c.State(okr.ObjectivesKey).Status != cache.StatusLoading {
			if time.Now().After(deadline) {
				t.Fatal("fetch never started")
			}
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		close(gw.ListGate)
		wg.Wait()

		if n := gw.CallCount("ListObjectives"); n != 1 {
			t.Errorf("ListObjectives called %d times, want 1", n)
		}
	})

	t.Run("objective lookup", func(t *testing.T) {
		svc, _, _ := newService(t, sampleObjectives()...)
		o, err := svc.Objective(context.Background(), "3")
		if err != nil || o.Title != "Hire engineers" {
			t.Errorf("Objective() = %+v, %v", o, err)
		}
		if _, err := svc.Objective(context.Background(), "missing"); !errors.Is(err, okr.ErrNotFound) {
			t.Errorf("Objective(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_DeleteObjective(t *testing.T) {
	ctx := context.Background()

	t.Run("failed delete restores the exact list", func(t *testing.T) {
		svc, gw, c := newService(t, sampleObjectives()...)
		before, err := svc.Objectives(ctx)
		if err != nil {
			t.Fatalf("Objectives() error = %v", err)
		}
		beforeState := c.State(okr.ObjectivesKey)

		gw.FailNext("DeleteObjective", errors.New("server down"))
		if err := svc.DeleteObjective(ctx, "2"); err == nil {
			t.Fatal("DeleteObjective() expected error")
		}

		after, err := svc.Objectives(ctx)
		if err != nil {
			t.Fatalf("Objectives() error = %v", err)
		}
		if !reflect.DeepEqual(before, after) {
			t.Errorf("list after failed delete = %v, want %v", ids(after), ids(before))
		}
		if !reflect.DeepEqual(beforeState, c.State(okr.ObjectivesKey)) {
			t.Error("cache entry differs from pre-mutation snapshot")
		}
		if n := gw.CallCount("ListObjectives"); n != 1 {
			t.Errorf("ListObjectives called %d times, want no refetch after rollback", n)
		}
	})

	t.Run("entity disappears before the request settles", func(t *testing.T) {
		c := cache.New()
		probe := &probeGateway{FakeGateway: testutil.NewFakeGateway(sampleObjectives()...)}
		svc := okr.NewService(probe, c, testutil.NewStubIDGenerator(), okr.NewNopLogger())
		if _, err := svc.Objectives(ctx); err != nil {
			t.Fatal(err)
		}

		var seen []string
		probe.onDelete = func() {
			list, _, _, _ := svc.CachedObjectives()
			seen = ids(list)
		}
		if err := svc.DeleteObjective(ctx, "2"); err != nil {
			t.Fatalf("DeleteObjective() error = %v", err)
		}
		if !reflect.DeepEqual(seen, []string{"1", "3", "4"}) {
			t.Errorf("cached list during request = %v", seen)
		}
	})

	t.Run("successful delete refetches", func(t *testing.T) {
		svc, gw, _ := newService(t, sampleObjectives()...)
		if _, err := svc.Objectives(ctx); err != nil {
			t.Fatal(err)
		}
		if err := svc.DeleteObjective(ctx, "2"); err != nil {
			t.Fatalf("DeleteObjective() error = %v", err)
		}
		list, err := svc.Objectives(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(list); !reflect.DeepEqual(got, []string{"1", "3", "4"}) {
			t.Errorf("list = %v", got)
		}
		if n := gw.CallCount("ListObjectives"); n != 2 {
			t.Errorf("ListObjectives called %d times, want 2", n)
		}
	})
}

type probeGateway struct {
	*testutil.FakeGateway
	onDelete func()
}

func (p *probeGateway) DeleteObjective(ctx context.Context, id string) error {
	if p.onDelete != nil {
		p.onDelete()
	}
	return p.FakeGateway.DeleteObjective(ctx, id)
}

func TestService_Mutations(t *testing.T) {
	ctx := context.Background()

	t.Run("create invalidates the list", func(t *testing.T) {
		svc, _, c := newService(t)
		if _, err := svc.Objectives(ctx); err != nil {
			t.Fatal(err)
		}
		f := svc.NewCreateForm()
		f.Title, f.Responsible, f.DueDate = "New", "Sam", "2024-09-30"
		_ = f.SetRow(0, okr.KeyResultDraft{Title: "KR", Target: 5, Unit: "x"})

		if _, err := svc.CreateObjective(ctx, f); err != nil {
			t.Fatalf("CreateObjective() error = %v", err)
		}
		if !c.State(okr.ObjectivesKey).Stale {
			t.Error("list not invalidated")
		}
		list, _ := svc.Objectives(ctx)
		if len(list) != 1 || len(list[0].KeyResults) != 1 {
			t.Errorf("list after create = %+v", list)
		}
	})

	t.Run("partial create still invalidates", func(t *testing.T) {
		svc, gw, c := newService(t)
		if _, err := svc.Objectives(ctx); err != nil {
			t.Fatal(err)
		}
		f := svc.NewCreateForm()
		f.Title, f.Responsible, f.DueDate = "New", "Sam", "2024-09-30"
		_ = f.SetRow(0, okr.KeyResultDraft{Title: "KR", Target: 5, Unit: "x"})
		gw.FailNext("CreateKeyResult", errors.New("nope"))

		var partial *okr.PartialCreateError
		if _, err := svc.CreateObjective(ctx, f); !errors.As(err, &partial) {
			t.Fatalf("CreateObjective() error = %v", err)
		}
		if !c.State(okr.ObjectivesKey).Stale {
			t.Error("list not invalidated after partial create")
		}
	})

	t.Run("failed create before any write keeps the cache fresh", func(t *testing.T) {
		svc, gw, c := newService(t)
		if _, err := svc.Objectives(ctx); err != nil {
			t.Fatal(err)
		}
		gw.FailNext("CreateObjective", errors.New("nope"))
		f := svc.NewCreateForm()
		f.Title, f.Responsible, f.DueDate = "New", "Sam", "2024-09-30"
		if _, err := svc.CreateObjective(ctx, f); err == nil {
			t.Fatal("CreateObjective() expected error")
		}
		if c.State(okr.ObjectivesKey).Stale {
			t.Error("list invalidated although nothing was written")
		}
	})

	t.Run("edit form round trip", func(t *testing.T) {
		svc, _, _ := newService(t, persistedObjective())
		f, err := svc.NewEditForm(ctx, "okr-1")
		if err != nil {
			t.Fatalf("NewEditForm() error = %v", err)
		}
		if err := svc.RemoveKeyResultRow(ctx, f, "kr-2"); err != nil {
			t.Fatalf("RemoveKeyResultRow() error = %v", err)
		}
		f.Responsible = "Sam"
		if _, err := svc.UpdateObjective(ctx, f); err != nil {
			t.Fatalf("UpdateObjective() error = %v", err)
		}
		o, err := svc.Objective(ctx, "okr-1")
		if err != nil {
			t.Fatal(err)
		}
		if o.Responsible != "Sam" || len(o.KeyResults) != 1 {
			t.Errorf("objective after edit = %+v", o)
		}
	})

	t.Run("key result mutations invalidate", func(t *testing.T) {
		svc, _, c := newService(t, persistedObjective())
		if _, err := svc.Objectives(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.UpdateKeyResult(ctx, "kr-1", okr.KeyResultInput{Title: "Revenue", Target: 2, Unit: "M$", CurrentValue: 2}); err != nil {
			t.Fatalf("UpdateKeyResult() error = %v", err)
		}
		if !c.State(okr.ObjectivesKey).Stale {
			t.Error("list not invalidated")
		}
		o, _ := svc.Objective(ctx, "okr-1")
		if o.KeyResults[0].Progress() != 100 {
			t.Errorf("progress = %d, want 100", o.KeyResults[0].Progress())
		}
	})
}

func TestService_Comments(t *testing.T) {
	ctx := context.Background()
	svc, gw, c := newService(t, persistedObjective())

	list, err := svc.Comments(ctx, "okr-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("Comments() = %v, %v", list, err)
	}

	composer := svc.NewComposer("okr-1")
	composer.SetText("ship it")
	if _, err := composer.Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !c.State(okr.CommentsKey("okr-1")).Stale {
		t.Error("comments not invalidated")
	}

	list, err = svc.Comments(ctx, "okr-1")
	if err != nil || len(list) != 2 {
		t.Errorf("Comments() after post = %d items, %v", len(list), err)
	}
	if n := gw.CallCount("ListComments"); n != 2 {
		t.Errorf("ListComments called %d times, want 2", n)
	}
}

func TestService_Notifications(t *testing.T) {
	t.Run("only fetches while watched", func(t *testing.T) {
		svc, gw, _ := newService(t)
		gw.SetNotifications([]okr.Notification{{ID: "n1", EventType: okr.EventComment}})

		ctx, cancel := context.WithCancel(context.Background())
		updates := svc.WatchNotifications(ctx)
		waitForNotifications(t, updates, 1)

		gw.SetNotifications([]okr.Notification{{ID: "n1"}, {ID: "n2"}})
		svc.RefreshNotifications()
		waitForNotifications(t, updates, 2)

		cancel()
		for range updates {
		}
		calls := gw.CallCount("ListNotifications")
		svc.RefreshNotifications()
		time.Sleep(20 * time.Millisecond)
		if gw.CallCount("ListNotifications") != calls {
			t.Error("notifications fetched without a watcher")
		}
	})

	t.Run("one-shot list", func(t *testing.T) {
		svc, gw, _ := newService(t)
		gw.SetNotifications([]okr.Notification{{ID: "n1"}})
		list, err := svc.Notifications(context.Background())
		if err != nil || len(list) != 1 {
			t.Errorf("Notifications() = %v, %v", list, err)
		}
	})
}

func TestService_CachedObjectives(t *testing.T) {
	svc, _, _ := newService(t, sampleObjectives()...)
	if _, _, _, err := svc.CachedObjectives(); !errors.Is(err, okr.ErrNotFound) {
		t.Errorf("CachedObjectives() on cold cache error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Objectives(context.Background()); err != nil {
		t.Fatal(err)
	}
	list, stale, _, err := svc.CachedObjectives()
	if err != nil || stale || len(list) != 4 {
		t.Errorf("CachedObjectives() = %d items, stale %v, %v", len(list), stale, err)
	}

	svc.Forget()
	if _, _, _, err := svc.CachedObjectives(); !errors.Is(err, okr.ErrNotFound) {
		t.Errorf("CachedObjectives() after Forget error = %v", err)
	}
}

func waitForNotifications(t *testing.T, updates <-chan okr.NotificationUpdate, n int) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				t.Fatal("updates closed")
			}
			if !u.Loading && len(u.Notifications) == n {
				return
			}
		case <-timeout:
			t.Fatalf("never saw %d notifications", n)
		}
	}
}
