package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return &cli{t: t, base: []string{
		"--backend", "file",
		"--db-path", filepath.Join(home, "queue.json"),
		"--log-level", "error",
	}}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(append([]string{}, args...), c.base...))
	err := root.Execute()
	return out.String(), err
}

func TestEnqueueListStats(t *testing.T) {
	c := newCLI(t)

	id, err := c.run("enqueue", "--owner", "u1", "--resource", "todos", "--op", "create", "--payload", `{"title":"milk"}`)
	require.NoError(t, err)
	id = strings.TrimSpace(id)
	require.NotEmpty(t, id)

	_, err = c.run("enqueue", "--owner", "u2", "--resource", "todos/7", "--op", "delete")
	require.NoError(t, err)

	out, err := c.run("list", "--owner", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "CREATE")
	assert.NotContains(t, out, "todos/7")

	out, err = c.run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total:     2")
	assert.Contains(t, out, "pending:   2")

	_, err = c.run("discard", id)
	require.NoError(t, err)
	_, err = c.run("discard", id)
	assert.Error(t, err)

	_, err = c.run("clear")
	assert.Error(t, err)
	_, err = c.run("clear", "--yes")
	require.NoError(t, err)

	out, err = c.run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total:     0")
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("enqueue", "--owner", "u1", "--resource", "todos", "--op", "upsert")
	assert.Error(t, err)

	_, err = c.run("enqueue", "--owner", "u1", "--resource", "todos", "--payload", "{not json")
	assert.Error(t, err)

	_, err = c.run("enqueue", "--resource", "todos")
	assert.Error(t, err)
}

func TestSyncDrainsQueue(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newCLI(t)
	for _, res := range []string{"todos", "notes"} {
		_, err := c.run("enqueue", "--owner", "u1", "--resource", res, "--payload", `{}`)
		require.NoError(t, err)
	}

	out, err := c.run("sync", "--service-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "synced 2, failed 0, 0 left in queue")
	assert.Equal(t, int32(2), hits.Load())
}

func TestSyncReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newCLI(t)
	_, err := c.run("enqueue", "--owner", "u1", "--resource", "todos", "--payload", `{}`)
	require.NoError(t, err)

	out, err := c.run("sync", "--service-url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, out, "synced 0, failed 1, 1 left in queue")

	out, err = c.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "todos")
}

func TestSyncRequiresServiceURL(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("sync")
	assert.ErrorContains(t, err, "service-url")
}

func TestReadPayload(t *testing.T) {
	b, err := readPayload(strings.NewReader(`{"a":1}`), "", "-")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	b, err = readPayload(nil, `{"b":2}`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(b))

	b, err = readPayload(nil, "", "")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = readPayload(nil, "", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
