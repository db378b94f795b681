package okr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"okr-go/internal/cache"
)

// Cache keys owned by Service.
var (
	ObjectivesKey    = cache.Key{"okrs"}
	NotificationsKey = cache.Key{"notifications"}
)

// CommentsKey is the cache key of one objective's comment list.
func CommentsKey(okrID string) cache.Key {
	return cache.Key{"comments", okrID}
}

// Service reads through the query cache and applies the mutation policy:
// deleting an objective is optimistic with rollback; every other mutation
// invalidates the affected lists once it settles.
type Service struct {
	gw     Gateway
	cache  *cache.Cache
	ids    IDGenerator
	logger Logger
}

// NewService returns a Service that fetches through gw and caches in c.
func NewService(gw Gateway, c *cache.Cache, ids IDGenerator, logger Logger) *Service {
	return &Service{gw: gw, cache: c, ids: ids, logger: logger}
}

// Objectives returns the objective list, fetching only when the cached copy
// is missing or stale.
func (s *Service) Objectives(ctx context.Context) ([]Objective, error) {
	return cache.Query(ctx, s.cache, ObjectivesKey, s.gw.ListObjectives)
}

// CachedObjectives returns the last known list without touching the network.
func (s *Service) CachedObjectives() (list []Objective, stale bool, fetchedAt time.Time, err error) {
	c, err := cache.Peek[[]Objective](s.cache, ObjectivesKey)
	if err != nil {
		return nil, false, time.Time{}, err
	}
	if !c.Found {
		return nil, false, time.Time{}, fmt.Errorf("no cached objectives: %w", ErrNotFound)
	}
	return c.Data, c.Stale, c.UpdatedAt, nil
}

// Objective returns one objective from the list.
func (s *Service) Objective(ctx context.Context, id string) (*Objective, error) {
	list, err := s.Objectives(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			o := list[i]
			return &o, nil
		}
	}
	return nil, fmt.Errorf("objective %s: %w", id, ErrNotFound)
}

// NewCreateForm returns an empty create form using the service's IDs.
func (s *Service) NewCreateForm() *CreateObjectiveForm {
	return NewCreateObjectiveForm(s.ids)
}

// NewEditForm returns an edit form hydrated from the latest copy of id.
func (s *Service) NewEditForm(ctx context.Context, id string) (*EditObjectiveForm, error) {
	o, err := s.Objective(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewEditObjectiveForm(*o, s.ids), nil
}

// CreateObjective submits f. The list is invalidated even on partial
// failure since some resources may already exist on the server.
func (s *Service) CreateObjective(ctx context.Context, f *CreateObjectiveForm) (*Objective, error) {
	obj, err := f.Submit(ctx, s.gw)
	var partial *PartialCreateError
	if err == nil || errors.As(err, &partial) {
		s.cache.Invalidate(ObjectivesKey)
	}
	if err != nil {
		return obj, err
	}
	s.logger.Info("objective created", "id", obj.ID, "key_results", len(obj.KeyResults))
	return obj, nil
}

// UpdateObjective submits f and invalidates the list.
func (s *Service) UpdateObjective(ctx context.Context, f *EditObjectiveForm) (*Objective, error) {
	obj, err := f.Submit(ctx, s.gw)
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		// Row writes may have landed before a later one failed.
		s.cache.Invalidate(ObjectivesKey)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("objective updated", "id", obj.ID)
	return obj, nil
}

// RemoveKeyResultRow removes a row from f, deleting it on the server when it
// is persisted.
func (s *Service) RemoveKeyResultRow(ctx context.Context, f *EditObjectiveForm, id string) error {
	row, ok := f.Row(id)
	if err := f.RemoveRow(ctx, s.gw, id); err != nil {
		return err
	}
	if ok && !row.IsDraft() {
		s.cache.Invalidate(ObjectivesKey)
	}
	return nil
}

// DeleteObjective removes id from the cached list before the request is
// sent. If the request fails the list is restored exactly as it was.
func (s *Service) DeleteObjective(ctx context.Context, id string) error {
	m, err := cache.Optimistic(s.cache, ObjectivesKey, func(list []Objective) []Objective {
		return slices.DeleteFunc(slices.Clone(list), func(o Objective) bool { return o.ID == id })
	})
	if err != nil {
		return err
	}
	err = m.Run(ctx, func(ctx context.Context) error {
		return s.gw.DeleteObjective(ctx, id)
	})
	if err != nil {
		s.logger.Warn("delete rolled back", "id", id, "error", err)
		return fmt.Errorf("deleting objective: %w", err)
	}
	s.cache.Remove(CommentsKey(id))
	s.logger.Info("objective deleted", "id", id)
	return nil
}

// CreateKeyResult adds a key result to okrID.
func (s *Service) CreateKeyResult(ctx context.Context, okrID string, in KeyResultInput) (*KeyResult, error) {
	kr, err := s.gw.CreateKeyResult(ctx, okrID, in)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ObjectivesKey)
	return kr, nil
}

// UpdateKeyResult replaces a key result.
func (s *Service) UpdateKeyResult(ctx context.Context, id string, in KeyResultInput) (*KeyResult, error) {
	kr, err := s.gw.UpdateKeyResult(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ObjectivesKey)
	return kr, nil
}

// DeleteKeyResult removes a key result.
func (s *Service) DeleteKeyResult(ctx context.Context, id string) error {
	if err := s.gw.DeleteKeyResult(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ObjectivesKey)
	return nil
}

// Comments returns the comments of okrID.
func (s *Service) Comments(ctx context.Context, okrID string) ([]Comment, error) {
	return cache.Query(ctx, s.cache, CommentsKey(okrID), func(ctx context.Context) ([]Comment, error) {
		return s.gw.ListComments(ctx, okrID)
	})
}

// CreateComment posts a comment and invalidates the comment list of okrID
// and the objective list, which embeds comments.
func (s *Service) CreateComment(ctx context.Context, okrID string, in CommentInput) (*Comment, error) {
	c, err := s.gw.CreateComment(ctx, okrID, in)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(CommentsKey(okrID))
	s.cache.Invalidate(ObjectivesKey)
	return c, nil
}

// NewComposer returns a comment composer that posts through the service.
func (s *Service) NewComposer(okrID string) *CommentComposer {
	return NewCommentComposer(okrID, s)
}

// Notifications returns the notification list.
func (s *Service) Notifications(ctx context.Context) ([]Notification, error) {
	return cache.Query(ctx, s.cache, NotificationsKey, s.gw.ListNotifications)
}

// NotificationUpdate is one observed state of the notification list.
type NotificationUpdate struct {
	Notifications []Notification
	Loading       bool
	Err           error
}

// WatchNotifications streams the notification list while ctx is alive.
// Fetching happens only while a watcher exists; RefreshNotifications
// triggers a re-fetch.
func (s *Service) WatchNotifications(ctx context.Context) <-chan NotificationUpdate {
	states := s.cache.Observe(ctx, NotificationsKey, func(ctx context.Context) (any, error) {
		return s.gw.ListNotifications(ctx)
	})
	out := make(chan NotificationUpdate)
	go func() {
		defer close(out)
		for st := range states {
			u := NotificationUpdate{Loading: st.Status == cache.StatusLoading, Err: st.Err}
			if list, ok := st.Data.([]Notification); ok {
				u.Notifications = list
			}
			select {
			case out <- u:
			case <-ctx.Done():
				// Drain so the observer goroutine can close states.
				for range states {
				}
				return
			}
		}
	}()
	return out
}

// RefreshNotifications marks the notification list stale.
func (s *Service) RefreshNotifications() {
	s.cache.Invalidate(NotificationsKey)
}

// Forget drops every cached list, e.g. after logout.
func (s *Service) Forget() {
	s.cache.Remove(ObjectivesKey)
	s.cache.Remove(cache.Key{"comments"})
	s.cache.Remove(NotificationsKey)
}
