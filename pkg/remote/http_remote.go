package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"

	"github.com/bft-labs/syncq/pkg/log"
	"github.com/bft-labs/syncq/pkg/queue"
)

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 512

// HTTPRemote implements Remote over HTTP/JSON.
type HTTPRemote struct {
	baseURL    string
	client     HTTPClient
	authorizer Authorizer
	logger     log.Logger
	userAgent  string
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote creates a remote rooted at baseURL. A nil client uses
// http.DefaultClient; a nil logger disables logging.
func NewHTTPRemote(baseURL string, client HTTPClient, logger log.Logger) *HTTPRemote {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &HTTPRemote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
		authorizer: BearerAuthorizer{},
		logger:     logger,
		userAgent:  "syncq/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")",
	}
}

// WithAuthorizer replaces the default BearerAuthorizer.
func (r *HTTPRemote) WithAuthorizer(a Authorizer) *HTTPRemote {
	if a != nil {
		r.authorizer = a
	}
	return r
}

// Apply implements Remote.
func (r *HTTPRemote) Apply(ctx context.Context, req Request) error {
	method, err := methodFor(req.Operation)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteCallFailed, err)
	}

	var body io.Reader
	if req.Operation != queue.OpDelete && len(req.Payload) > 0 {
		body = bytes.NewReader(req.Payload)
	}

	url := r.baseURL + "/" + strings.TrimLeft(req.Resource, "/")
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrRemoteCallFailed, err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", r.userAgent)
	if req.ID != "" {
		httpReq.Header.Set("Idempotency-Key", req.ID)
	}
	if err := r.authorizer.Authorize(ctx, httpReq, req.CredentialRef); err != nil {
		return fmt.Errorf("%w: authorize: %v", ErrRemoteCallFailed, err)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: send request: %v", ErrRemoteCallFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		r.logger.Debug("remote rejected mutation",
			log.String("id", req.ID),
			log.String("method", method),
			log.String("url", url),
			log.Int("status", resp.StatusCode),
		)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func methodFor(op queue.Operation) (string, error) {
	switch op {
	case queue.OpCreate:
		return http.MethodPost, nil
	case queue.OpUpdate:
		return http.MethodPatch, nil
	case queue.OpDelete:
		return http.MethodDelete, nil
	default:
		return "", fmt.Errorf("unsupported operation %q", op)
	}
}
