package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/syncq/pkg/queue"
)

type recorded struct {
	method      string
	path        string
	body        string
	contentType string
	auth        string
	idemKey     string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func newRecordingServer(t *testing.T, status int) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.calls = append(rec.calls, recorded{
			method:      r.Method,
			path:        r.URL.Path,
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			auth:        r.Header.Get("Authorization"),
			idemKey:     r.Header.Get("Idempotency-Key"),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte("detail"))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestHTTPRemote_Apply_MapsOperations(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		{
			name:       "create posts payload",
			req:        Request{ID: "r1", Resource: "todos", Operation: queue.OpCreate, Payload: []byte(`{"t":"a"}`), CredentialRef: "tok"},
			wantMethod: http.MethodPost,
			wantPath:   "/todos",
			wantBody:   `{"t":"a"}`,
		},
		{
			name:       "update patches payload",
			req:        Request{ID: "r2", Resource: "todos/7", Operation: queue.OpUpdate, Payload: []byte(`{"done":true}`), CredentialRef: "tok"},
			wantMethod: http.MethodPatch,
			wantPath:   "/todos/7",
			wantBody:   `{"done":true}`,
		},
		{
			name:       "delete sends no body",
			req:        Request{ID: "r3", Resource: "/todos/7", Operation: queue.OpDelete, Payload: []byte(`{"x":1}`), CredentialRef: "tok"},
			wantMethod: http.MethodDelete,
			wantPath:   "/todos/7",
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := newRecordingServer(t, http.StatusOK)
			r := NewHTTPRemote(srv.URL+"/", srv.Client(), nil)

			if err := r.Apply(context.Background(), tt.req); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			all := calls.all()
			if len(all) != 1 {
				t.Fatalf("calls = %d, want 1", len(all))
			}
			got := all[0]
			if got.method != tt.wantMethod {
				t.Errorf("method = %s, want %s", got.method, tt.wantMethod)
			}
			if got.path != tt.wantPath {
				t.Errorf("path = %s, want %s", got.path, tt.wantPath)
			}
			if got.body != tt.wantBody {
				t.Errorf("body = %q, want %q", got.body, tt.wantBody)
			}
			if got.auth != "Bearer tok" {
				t.Errorf("Authorization = %q", got.auth)
			}
			if got.idemKey != tt.req.ID {
				t.Errorf("Idempotency-Key = %q, want %q", got.idemKey, tt.req.ID)
			}
			if tt.wantBody != "" && got.contentType != "application/json" {
				t.Errorf("Content-Type = %q", got.contentType)
			}
		})
	}
}

func TestHTTPRemote_Apply_AnySuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent} {
		srv, _ := newRecordingServer(t, status)
		r := NewHTTPRemote(srv.URL, srv.Client(), nil)
		err := r.Apply(context.Background(), Request{Resource: "todos", Operation: queue.OpCreate, Payload: []byte(`{}`)})
		if err != nil {
			t.Errorf("status %d: Apply() error = %v", status, err)
		}
	}
}

func TestHTTPRemote_Apply_NonSuccess(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusInternalServerError)
	r := NewHTTPRemote(srv.URL, srv.Client(), nil)

	err := r.Apply(context.Background(), Request{Resource: "todos", Operation: queue.OpCreate})
	if !errors.Is(err, ErrRemoteCallFailed) {
		t.Fatalf("error = %v, want ErrRemoteCallFailed", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Error("500 should not match ErrConflict")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError || se.Body != "detail" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestHTTPRemote_Apply_Conflict(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusConflict)
	r := NewHTTPRemote(srv.URL, srv.Client(), nil)

	err := r.Apply(context.Background(), Request{Resource: "todos/1", Operation: queue.OpUpdate, Payload: []byte(`{}`)})
	if !errors.Is(err, ErrConflict) || !errors.Is(err, ErrRemoteCallFailed) {
		t.Errorf("error = %v, want ErrConflict and ErrRemoteCallFailed", err)
	}
}

func TestHTTPRemote_Apply_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewHTTPRemote(url, nil, nil)
	err := r.Apply(context.Background(), Request{Resource: "todos", Operation: queue.OpCreate})
	if !errors.Is(err, ErrRemoteCallFailed) {
		t.Errorf("error = %v, want ErrRemoteCallFailed", err)
	}
}

func TestHTTPRemote_Apply_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewHTTPRemote(srv.URL, srv.Client(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Apply(ctx, Request{Resource: "todos", Operation: queue.OpCreate})
	if !errors.Is(err, ErrRemoteCallFailed) {
		t.Errorf("error = %v, want ErrRemoteCallFailed", err)
	}
}

func TestHTTPRemote_Apply_UnknownOperation(t *testing.T) {
	srv, calls := newRecordingServer(t, http.StatusOK)
	r := NewHTTPRemote(srv.URL, srv.Client(), nil)

	err := r.Apply(context.Background(), Request{Resource: "todos", Operation: "UPSERT"})
	if !errors.Is(err, ErrRemoteCallFailed) {
		t.Errorf("error = %v, want ErrRemoteCallFailed", err)
	}
	if len(calls.all()) != 0 {
		t.Errorf("calls = %d, want 0", len(calls.all()))
	}
}

func TestHTTPRemote_WithAuthorizer(t *testing.T) {
	srv, calls := newRecordingServer(t, http.StatusOK)
	r := NewHTTPRemote(srv.URL, srv.Client(), nil).WithAuthorizer(
		AuthorizerFunc(func(_ context.Context, req *http.Request, ref string) error {
			req.Header.Set("Authorization", "Session "+ref)
			return nil
		}),
	)

	if err := r.Apply(context.Background(), Request{Resource: "todos", Operation: queue.OpDelete, CredentialRef: "s1"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := calls.all()[0].auth; got != "Session s1" {
		t.Errorf("Authorization = %q", got)
	}

	failing := NewHTTPRemote(srv.URL, srv.Client(), nil).WithAuthorizer(
		AuthorizerFunc(func(context.Context, *http.Request, string) error {
			return errors.New("session expired")
		}),
	)
	if err := failing.Apply(context.Background(), Request{Resource: "todos", Operation: queue.OpDelete}); !errors.Is(err, ErrRemoteCallFailed) {
		t.Errorf("error = %v, want ErrRemoteCallFailed", err)
	}
}

func TestRequestFromRecord(t *testing.T) {
	rec := queue.Record{ID: "1", Resource: "todos", Operation: queue.OpCreate, Payload: []byte(`{}`), CredentialRef: "c"}
	req := RequestFromRecord(rec)
	if req.ID != "1" || req.Resource != "todos" || req.Operation != queue.OpCreate || req.CredentialRef != "c" {
		t.Errorf("RequestFromRecord() = %+v", req)
	}
}
