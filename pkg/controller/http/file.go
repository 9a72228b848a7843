package http

import (
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/service/executor"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
)

// handlePreviewFile returns the current content of a file so a reviewer can
// compare it with a proposed edit before approving.
func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path := r.URL.Query().Get("path")
	if path == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("path is required"), http.StatusBadRequest)
		return
	}

	content, err := s.files.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, executor.ErrPathOutsideRoot):
		errutil.HandleHTTP(ctx, w, err, http.StatusForbidden)
		return
	case errors.Is(err, executor.ErrFileNotFound), !s.files.FileExists(path):
		writeJSON(ctx, w, http.StatusOK, map[string]any{"path": path, "exists": false})
		return
	default:
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]any{
		"path":    path,
		"exists":  true,
		"content": content,
	})
}
