package errutil_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
)

func TestHandle(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	t.Run("nil error is a no-op", func(t *testing.T) {
		gt.NoError(t, errutil.Handle(ctx, nil, "nothing"))
		gt.S(t, buf.String()).Equal("")
	})

	t.Run("logs goerr values", func(t *testing.T) {
		err := goerr.New("boom", goerr.V("action_id", "a-1"))
		got := errutil.Handle(ctx, err, "operation failed")
		gt.Error(t, got).Is(err)
		gt.S(t, buf.String()).Contains("operation failed")
		gt.S(t, buf.String()).Contains("a-1")
	})
}

func TestHandleHTTP(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	rec := httptest.NewRecorder()
	errutil.HandleHTTP(ctx, rec, goerr.New("bad input"), http.StatusBadRequest)

	gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	gt.S(t, rec.Body.String()).Contains("bad input")
	gt.S(t, buf.String()).Contains(`"status":400`)
}
