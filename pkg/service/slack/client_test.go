package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/musubi-dev/musubi/pkg/service/slack"
	goslack "github.com/slack-go/slack"
)

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates service when token is provided", func(t *testing.T) {
		svc, err := slack.New("test-token")
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})
}

// fakeSlackAPI records Web API calls and answers with canned payloads
type fakeSlackAPI struct {
	mu    sync.Mutex
	calls map[string][]map[string][]string
}

func newFakeSlackAPI(t *testing.T) (*fakeSlackAPI, *httptest.Server) {
	f := &fakeSlackAPI{calls: map[string][]map[string][]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.NoError(t, r.ParseForm())

		f.mu.Lock()
		f.calls[r.URL.Path] = append(f.calls[r.URL.Path], r.PostForm)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":      true,
			"channel": r.PostForm.Get("channel"),
			"ts":      "1700000000.000100",
		})
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeSlackAPI) get(path string) []map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func TestPostAndUpdateMessage(t *testing.T) {
	api, srv := newFakeSlackAPI(t)
	svc, err := slack.New("xoxb-test", slack.WithAPIURL(srv.URL+"/"))
	gt.NoError(t, err).Required()

	ctx := context.Background()
	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, "hello", false, false), nil, nil),
	}

	ts, err := svc.PostMessage(ctx, "C123", blocks, "fallback")
	gt.NoError(t, err).Required()
	gt.Value(t, ts).Equal("1700000000.000100")

	posts := api.get("/chat.postMessage")
	gt.A(t, posts).Length(1)
	gt.Value(t, posts[0]["channel"][0]).Equal("C123")
	gt.Value(t, posts[0]["text"][0]).Equal("fallback")

	gt.NoError(t, svc.UpdateMessage(ctx, "C123", ts, blocks, "updated")).Required()
	updates := api.get("/chat.update")
	gt.A(t, updates).Length(1)
	gt.Value(t, updates[0]["ts"][0]).Equal(ts)
	gt.Value(t, updates[0]["text"][0]).Equal("updated")
}

func TestIntegration(t *testing.T) {
	token := os.Getenv("TEST_SLACK_BOT_TOKEN")
	channelID := os.Getenv("TEST_SLACK_CHANNEL_ID")
	if token == "" || channelID == "" {
		t.Skip("TEST_SLACK_BOT_TOKEN or TEST_SLACK_CHANNEL_ID is not set")
	}

	ctx := context.Background()
	svc, err := slack.New(token)
	gt.NoError(t, err).Required()

	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, "musubi integration test", false, false), nil, nil),
	}
	ts, err := svc.PostMessage(ctx, channelID, blocks, "musubi integration test")
	gt.NoError(t, err).Required()
	gt.String(t, ts).NotEqual("")

	gt.NoError(t, svc.UpdateMessage(ctx, channelID, ts, blocks, "musubi integration test (updated)")).Required()
}
