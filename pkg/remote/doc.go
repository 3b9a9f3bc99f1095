// Package remote defines how a queued mutation is applied to the backend.
//
// The coordinator only depends on the Remote interface. HTTPRemote is the
// stock implementation: CREATE is sent as POST, UPDATE as PATCH and DELETE
// as DELETE without a body, all against ServiceURL/<resource>. Any 2xx
// response is a success regardless of body.
//
// # Usage
//
//	r := remote.NewHTTPRemote("https://api.example.com", http.DefaultClient, logger)
//
//	err := r.Apply(ctx, remote.Request{
//	    ID:            rec.ID,
//	    Resource:      "todos",
//	    Operation:     queue.OpCreate,
//	    Payload:       rec.Payload,
//	    CredentialRef: rec.CredentialRef,
//	})
//
// Every failure wraps ErrRemoteCallFailed. Non-2xx responses are reported as
// *StatusError; a 409 additionally matches ErrConflict.
package remote
