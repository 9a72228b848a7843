package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
)

// handlePublishEvent pushes an event from the orchestrator into a project room
func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")

	var req struct {
		Event types.EventName `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes)).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid event request"), http.StatusBadRequest)
		return
	}
	if req.Event == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("event name is required"), http.StatusBadRequest)
		return
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}

	delivered := s.realtime.Publish(projectID, req.Event, data)
	logging.From(ctx).Debug("event published",
		"project_id", projectID,
		"event", req.Event,
		"delivered", delivered,
	)

	writeJSON(ctx, w, http.StatusOK, map[string]int{"delivered": delivered})
}
