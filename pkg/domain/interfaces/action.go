package interfaces

import (
	"context"

	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
)

// ActionRepository defines the interface for Action data access
type ActionRepository interface {
	// Create stores a new action. The ID must be set and unused.
	Create(ctx context.Context, action *model.Action) (*model.Action, error)

	// Get retrieves an action by ID
	Get(ctx context.Context, id model.ActionID) (*model.Action, error)

	// List retrieves all actions ordered by Timestamp ascending
	List(ctx context.Context) ([]*model.Action, error)

	// ListByStatus retrieves actions whose status is exactly status, ordered by Timestamp ascending
	ListByStatus(ctx context.Context, status types.ActionStatus) ([]*model.Action, error)

	// Update replaces an existing action
	Update(ctx context.Context, action *model.Action) (*model.Action, error)

	// DeleteMany deletes the given actions in one batch. Unknown IDs are ignored.
	DeleteMany(ctx context.Context, ids []model.ActionID) error
}

// ActionExecutor performs the side effect of an approved action and returns a result message
type ActionExecutor interface {
	Execute(ctx context.Context, action *model.Action) (string, error)
}

// EventPublisher fans an event out to every member of a project room
type EventPublisher interface {
	Publish(projectID string, name types.EventName, data any) int
}
