package http

import (
	"bytes"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/safe"
	"github.com/slack-go/slack"
)

// maxSlackBodyBytes bounds interaction payloads before they are verified
const maxSlackBodyBytes = 1 << 20

// verifySlackSignature checks the v0 signature and timestamp Slack attaches to every request
func verifySlackSignature(signingSecret string, header http.Header, body []byte) error {
	verifier, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return goerr.Wrap(err, "invalid slack signature headers")
	}
	if _, err := verifier.Write(body); err != nil {
		return goerr.Wrap(err, "failed to compute HMAC")
	}
	if err := verifier.Ensure(); err != nil {
		return goerr.Wrap(err, "signature mismatch")
	}
	return nil
}

// SlackSignatureMiddleware creates a middleware that verifies Slack request signatures
func SlackSignatureMiddleware(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSlackBodyBytes))
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
				return
			}
			safe.Close(ctx, r.Body)

			if err := verifySlackSignature(signingSecret, r.Header, body); err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "slack signature verification failed"), http.StatusUnauthorized)
				return
			}

			// Restore the body for the next handler
			r.Body = io.NopCloser(bytes.NewReader(body))

			next.ServeHTTP(w, r)
		})
	}
}
