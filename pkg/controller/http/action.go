package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/usecase"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
)

// maxActionBodyBytes bounds request bodies; file contents travel inline
const maxActionBodyBytes = 16 << 20

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBodyBytes))
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}

	var action model.Action
	if err := json.Unmarshal(body, &action); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid action"), http.StatusBadRequest)
		return
	}

	id, err := s.actionUC.Submit(ctx, &action)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusFromError(err))
		return
	}

	writeJSON(ctx, w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		actions []*model.Action
		err     error
	)

	status := r.URL.Query().Get("status")
	switch status {
	case "":
		actions, err = s.actionUC.List(ctx)
	case types.ActionStatusPending.String():
		actions, err = s.actionUC.ListPending(ctx)
	default:
		parsed, parseErr := types.ParseActionStatus(status)
		if parseErr != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(parseErr, "invalid status filter"), http.StatusBadRequest)
			return
		}
		actions, err = s.actionUC.List(ctx)
		actions = filterByStatus(actions, parsed)
	}
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	if actions == nil {
		actions = []*model.Action{}
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"actions": actions})
}

func filterByStatus(actions []*model.Action, status types.ActionStatus) []*model.Action {
	filtered := make([]*model.Action, 0, len(actions))
	for _, a := range actions {
		if a.Status == status {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	action, err := s.actionUC.Get(ctx, actionIDParam(r))
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusFromError(err))
		return
	}

	writeJSON(ctx, w, http.StatusOK, action)
}

type decisionResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleApproveAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ok, err := s.actionUC.Approve(ctx, actionIDParam(r))
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, decisionResponse{Success: ok})
}

func (s *Server) handleRejectAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Reason string `json:"reason"`
	}
	// body is optional
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid reject request"), http.StatusBadRequest)
			return
		}
	}

	ok, err := s.actionUC.Reject(ctx, actionIDParam(r), req.Reason)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, decisionResponse{Success: ok})
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result := s.actionUC.Execute(ctx, actionIDParam(r))
	writeJSON(ctx, w, http.StatusOK, result)
}

func (s *Server) handleCleanupActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	removed, err := s.actionUC.Cleanup(ctx)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]int{"removed": removed})
}

func actionIDParam(r *http.Request) model.ActionID {
	return model.ActionID(chi.URLParam(r, "actionID"))
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, usecase.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
