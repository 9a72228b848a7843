package firestore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// deleteBatchSize stays under the Firestore limit of 500 writes per transaction
const deleteBatchSize = 400

// actionDoc is the stored form of model.Action. Details are kept as JSON
// because Firestore cannot decode into an interface-typed field.
type actionDoc struct {
	ID             string    `firestore:"id"`
	Type           string    `firestore:"type"`
	Status         string    `firestore:"status"`
	Timestamp      time.Time `firestore:"timestamp"`
	Description    string    `firestore:"description"`
	Details        string    `firestore:"details"`
	Result         string    `firestore:"result"`
	Error          string    `firestore:"error"`
	ProjectID      string    `firestore:"project_id"`
	SlackMessageTS string    `firestore:"slack_message_ts"`
	UpdatedAt      time.Time `firestore:"updated_at"`
}

func toActionDoc(a *model.Action) (*actionDoc, error) {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode action details", goerr.V("id", a.ID))
	}
	return &actionDoc{
		ID:             a.ID.String(),
		Type:           a.Type.String(),
		Status:         a.Status.String(),
		Timestamp:      a.Timestamp,
		Description:    a.Description,
		Details:        string(details),
		Result:         a.Result,
		Error:          a.Error,
		ProjectID:      a.ProjectID,
		SlackMessageTS: a.SlackMessageTS,
		UpdatedAt:      a.UpdatedAt,
	}, nil
}

func (d *actionDoc) toModel() (*model.Action, error) {
	actionType := types.ActionType(d.Type)
	details, err := model.DecodeDetails(actionType, json.RawMessage(d.Details))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode stored action", goerr.V("id", d.ID))
	}
	return &model.Action{
		ID:             model.ActionID(d.ID),
		Type:           actionType,
		Status:         types.ActionStatus(d.Status),
		Timestamp:      d.Timestamp,
		Description:    d.Description,
		Details:        details,
		Result:         d.Result,
		Error:          d.Error,
		ProjectID:      d.ProjectID,
		SlackMessageTS: d.SlackMessageTS,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

type actionRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newActionRepository(client *firestore.Client) *actionRepository {
	return &actionRepository{
		client:           client,
		collectionPrefix: "",
	}
}

func (r *actionRepository) actionsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_actions"
	}
	return "actions"
}

func (r *actionRepository) doc(id model.ActionID) *firestore.DocumentRef {
	return r.client.Collection(r.actionsCollection()).Doc(id.String())
}

func (r *actionRepository) Create(ctx context.Context, action *model.Action) (*model.Action, error) {
	if action.ID == "" {
		return nil, goerr.New("action ID is required")
	}

	created := action.Copy()
	created.UpdatedAt = time.Now().UTC()

	doc, err := toActionDoc(created)
	if err != nil {
		return nil, err
	}

	if _, err := r.doc(created.ID).Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(ErrAlreadyExists, "action already exists", goerr.V("id", created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create action", goerr.V("id", created.ID))
	}

	return created, nil
}

func (r *actionRepository) Get(ctx context.Context, id model.ActionID) (*model.Action, error) {
	docSnap, err := r.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "action not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get action", goerr.V("id", id))
	}

	var doc actionDoc
	if err := docSnap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode action", goerr.V("id", id))
	}

	return doc.toModel()
}

func (r *actionRepository) List(ctx context.Context) ([]*model.Action, error) {
	return r.collect(r.client.Collection(r.actionsCollection()).Documents(ctx))
}

func (r *actionRepository) ListByStatus(ctx context.Context, s types.ActionStatus) ([]*model.Action, error) {
	// Ordering is done in memory to avoid a composite (status, timestamp) index
	iter := r.client.Collection(r.actionsCollection()).
		Where("status", "==", s.String()).
		Documents(ctx)
	return r.collect(iter)
}

func (r *actionRepository) collect(iter *firestore.DocumentIterator) ([]*model.Action, error) {
	defer iter.Stop()

	actions := make([]*model.Action, 0)
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate actions")
		}

		var doc actionDoc
		if err := docSnap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode action", goerr.V("doc_id", docSnap.Ref.ID))
		}

		a, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Timestamp.Equal(actions[j].Timestamp) {
			return actions[i].ID < actions[j].ID
		}
		return actions[i].Timestamp.Before(actions[j].Timestamp)
	})

	return actions, nil
}

func (r *actionRepository) Update(ctx context.Context, action *model.Action) (*model.Action, error) {
	docRef := r.doc(action.ID)

	updated := action.Copy()
	updated.UpdatedAt = time.Now().UTC()

	doc, err := toActionDoc(updated)
	if err != nil {
		return nil, err
	}

	err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(docRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "action not found", goerr.V("id", action.ID))
			}
			return goerr.Wrap(err, "failed to check action existence", goerr.V("id", action.ID))
		}
		return tx.Set(docRef, doc)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update action", goerr.V("id", action.ID))
	}

	return updated, nil
}

func (r *actionRepository) DeleteMany(ctx context.Context, ids []model.ActionID) error {
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		chunk := ids[start:end]

		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for _, id := range chunk {
				if err := tx.Delete(r.doc(id)); err != nil {
					return goerr.Wrap(err, "failed to delete action", goerr.V("id", id))
				}
			}
			return nil
		})
		if err != nil {
			return goerr.Wrap(err, "failed to delete actions", goerr.V("count", len(chunk)))
		}
	}
	return nil
}
