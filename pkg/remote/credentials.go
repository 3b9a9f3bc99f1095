package remote

import (
	"context"
	"net/http"
)

// Authorizer attaches credentials identified by an opaque reference to an
// outgoing request.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request, credentialRef string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req *http.Request, credentialRef string) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request, credentialRef string) error {
	return f(ctx, req, credentialRef)
}

// BearerAuthorizer sends the credential reference itself as a bearer token.
// Empty references send no Authorization header.
type BearerAuthorizer struct{}

// Authorize implements Authorizer.
func (BearerAuthorizer) Authorize(_ context.Context, req *http.Request, credentialRef string) error {
	if credentialRef != "" {
		req.Header.Set("Authorization", "Bearer "+credentialRef)
	}
	return nil
}
