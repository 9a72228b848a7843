package http_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/musubi-dev/musubi/pkg/controller/http"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/repository/memory"
	"github.com/musubi-dev/musubi/pkg/service/realtime"
	"github.com/musubi-dev/musubi/pkg/usecase"
	goslack "github.com/slack-go/slack"
)

const testSigningSecret = "test-signing-secret"

// computeSlackSignature computes the Slack signature for testing
func computeSlackSignature(signingSecret, timestamp, body string) string {
	baseString := fmt.Sprintf("v0:%s:%s", timestamp, body)
	h := hmac.New(sha256.New, []byte(signingSecret))
	h.Write([]byte(baseString))
	return "v0=" + hex.EncodeToString(h.Sum(nil))
}

func slackHeader(signingSecret, timestamp, signature string) http.Header {
	h := http.Header{}
	if timestamp != "" {
		h.Set("X-Slack-Request-Timestamp", timestamp)
	}
	if signature != "" {
		h.Set("X-Slack-Signature", signature)
	}
	return h
}

func TestVerifySlackSignature(t *testing.T) {
	body := []byte(`payload=%7B%7D`)

	t.Run("valid signature", func(t *testing.T) {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		signature := computeSlackSignature(testSigningSecret, timestamp, string(body))

		err := httpctrl.VerifySlackSignature(testSigningSecret, slackHeader(testSigningSecret, timestamp, signature), body)
		gt.NoError(t, err)
	})

	t.Run("invalid signature", func(t *testing.T) {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		err := httpctrl.VerifySlackSignature(testSigningSecret, slackHeader(testSigningSecret, timestamp, "v0=deadbeef"), body)
		gt.Value(t, err).NotNil()
	})

	t.Run("missing timestamp", func(t *testing.T) {
		signature := computeSlackSignature(testSigningSecret, "123456", string(body))
		err := httpctrl.VerifySlackSignature(testSigningSecret, slackHeader(testSigningSecret, "", signature), body)
		gt.Value(t, err).NotNil()
	})

	t.Run("timestamp too old", func(t *testing.T) {
		old := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
		signature := computeSlackSignature(testSigningSecret, old, string(body))
		err := httpctrl.VerifySlackSignature(testSigningSecret, slackHeader(testSigningSecret, old, signature), body)
		gt.Value(t, err).NotNil()
	})

	t.Run("body tampered", func(t *testing.T) {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		signature := computeSlackSignature(testSigningSecret, timestamp, string(body))
		err := httpctrl.VerifySlackSignature(testSigningSecret, slackHeader(testSigningSecret, timestamp, signature), []byte("payload=other"))
		gt.Value(t, err).NotNil()
	})
}

func interactionRequest(t *testing.T, slackActionID string, actionID model.ActionID, sign bool) *http.Request {
	t.Helper()
	callback := goslack.InteractionCallback{
		Type: goslack.InteractionTypeBlockActions,
		User: goslack.User{ID: "UREVIEWER"},
		ActionCallback: goslack.ActionCallbacks{
			BlockActions: []*goslack.BlockAction{
				{ActionID: slackActionID, Value: actionID.String()},
			},
		},
	}
	payloadJSON, err := json.Marshal(callback)
	gt.NoError(t, err).Required()

	body := url.Values{"payload": {string(payloadJSON)}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/hooks/slack/interaction", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sign {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("X-Slack-Request-Timestamp", timestamp)
		req.Header.Set("X-Slack-Signature", computeSlackSignature(testSigningSecret, timestamp, body))
	}
	return req
}

func TestSlackInteractionEndpoint(t *testing.T) {
	setup := func(t *testing.T) (*usecase.ActionUseCase, *httpctrl.Server, model.ActionID) {
		t.Helper()
		actionUC := usecase.New(memory.New()).Action
		id, err := actionUC.Submit(t.Context(), &model.Action{
			Type:    types.ActionTypeCodeGeneration,
			Details: &model.CodeGenerationDetails{Prompt: "hello"},
		})
		gt.NoError(t, err).Required()

		srv := httpctrl.New(actionUC, realtime.New(), httpctrl.WithSlackInteraction(testSigningSecret))
		return actionUC, srv, id
	}

	t.Run("approve button click approves the action", func(t *testing.T) {
		actionUC, srv, id := setup(t)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, interactionRequest(t, usecase.SlackActionIDApprove, id, true))
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		got, err := actionUC.Get(t.Context(), id)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.ActionStatusApproved)
	})

	t.Run("reject button click rejects the action", func(t *testing.T) {
		actionUC, srv, id := setup(t)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, interactionRequest(t, usecase.SlackActionIDReject, id, true))
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		got, err := actionUC.Get(t.Context(), id)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.ActionStatusRejected)
		gt.S(t, got.Error).Contains("UREVIEWER")
	})

	t.Run("unsigned request is refused", func(t *testing.T) {
		actionUC, srv, id := setup(t)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, interactionRequest(t, usecase.SlackActionIDApprove, id, false))
		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)

		got, err := actionUC.Get(t.Context(), id)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.ActionStatusPending)
	})

	t.Run("unknown button is ignored", func(t *testing.T) {
		actionUC, srv, id := setup(t)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, interactionRequest(t, "other_button", id, true))
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		got, err := actionUC.Get(t.Context(), id)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.ActionStatusPending)
	})

	t.Run("endpoint is absent without a signing secret", func(t *testing.T) {
		actionUC := usecase.New(memory.New()).Action
		srv := httpctrl.New(actionUC, realtime.New())

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, interactionRequest(t, usecase.SlackActionIDApprove, "x", true))
		gt.Value(t, rec.Code).Equal(http.StatusNotFound)
	})
}
