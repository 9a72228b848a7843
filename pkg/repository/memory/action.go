package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
)

type actionRepository struct {
	mu      sync.RWMutex
	actions map[model.ActionID]*model.Action
}

func newActionRepository() *actionRepository {
	return &actionRepository{
		actions: make(map[model.ActionID]*model.Action),
	}
}

func (r *actionRepository) Create(ctx context.Context, action *model.Action) (*model.Action, error) {
	if action.ID == "" {
		return nil, goerr.New("action ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[action.ID]; exists {
		return nil, goerr.Wrap(ErrAlreadyExists, "action already exists", goerr.V("id", action.ID))
	}

	created := action.Copy()
	created.UpdatedAt = time.Now().UTC()
	r.actions[created.ID] = created
	return created.Copy(), nil
}

func (r *actionRepository) Get(ctx context.Context, id model.ActionID) (*model.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, exists := r.actions[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "action not found", goerr.V("id", id))
	}

	return action.Copy(), nil
}

func (r *actionRepository) List(ctx context.Context) ([]*model.Action, error) {
	return r.filter(func(*model.Action) bool { return true }), nil
}

func (r *actionRepository) ListByStatus(ctx context.Context, status types.ActionStatus) ([]*model.Action, error) {
	return r.filter(func(a *model.Action) bool { return a.Status == status }), nil
}

func (r *actionRepository) filter(match func(*model.Action) bool) []*model.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actions := make([]*model.Action, 0, len(r.actions))
	for _, action := range r.actions {
		if match(action) {
			actions = append(actions, action.Copy())
		}
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Timestamp.Equal(actions[j].Timestamp) {
			return actions[i].ID < actions[j].ID
		}
		return actions[i].Timestamp.Before(actions[j].Timestamp)
	})

	return actions
}

func (r *actionRepository) Update(ctx context.Context, action *model.Action) (*model.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[action.ID]; !exists {
		return nil, goerr.Wrap(ErrNotFound, "action not found", goerr.V("id", action.ID))
	}

	updated := action.Copy()
	updated.UpdatedAt = time.Now().UTC()
	r.actions[updated.ID] = updated
	return updated.Copy(), nil
}

func (r *actionRepository) DeleteMany(ctx context.Context, ids []model.ActionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		delete(r.actions, id)
	}
	return nil
}
