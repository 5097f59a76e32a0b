package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fakeServer(t *testing.T, pushStatus int, exerciseBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("content") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(pushStatus)
		case r.URL.Path == "/exercise":
			if c, err := r.Cookie("asterism"); err != nil || c.Value != "sess" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(exerciseBody))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(r.Host))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCountsDiffs(t *testing.T) {
	goSrv := fakeServer(t, http.StatusForbidden, `{"files": [1, 2]}`)
	legacySrv := fakeServer(t, http.StatusUnauthorized, `{"files":[1,2]}`)

	targets := []target{
		{Name: "push", Method: "post", Path: "/push/{token}", Form: map[string]string{"content": "x"}, Critical: true},
		{Name: "exercise", Path: "exercise", Cookie: "asterism={session}", Compare: compareJSON, Critical: true},
		{Name: "missing", Path: "/nope", Compare: "text"},
	}
	opts := options{
		goBase:     goSrv.URL,
		legacyBase: legacySrv.URL,
		vars:       map[string]string{"token": "a:b", "session": "sess"},
	}
	var out bytes.Buffer
	breaking, optional := run(context.Background(), goSrv.Client(), opts, targets, &out)

	assert.Equal(t, 1, breaking)
	assert.Equal(t, 1, optional)
	assert.Contains(t, out.String(), "[DIFF] POST push")
	assert.Contains(t, out.String(), "[OK] GET exercise")
	assert.Contains(t, out.String(), "Breaking diffs: 1, Optional diffs: 1")
}

func TestCompareTargetReportsTransportErrors(t *testing.T) {
	srv := fakeServer(t, http.StatusOK, "{}")
	comp := compareTarget(context.Background(), srv.Client(), srv.URL, "http://127.0.0.1:1", target{Path: "/"})
	require.Error(t, comp.Error)
	assert.True(t, comp.differs())
}

func TestExpand(t *testing.T) {
	vars := map[string]string{"signature": "a/b"}
	assert.Equal(t, "/bundle/a%2Fb/x", expand("/bundle/{signature}/x", vars, url.PathEscape))
	assert.Equal(t, "s=a/b", expand("s={signature}", vars, nil))
}

func TestJSONEqual(t *testing.T) {
	assert.True(t, jsonEqual([]byte(`{"a":1,"b":[1,2]}`), []byte(`{"b":[1,2],"a":1}`)))
	assert.False(t, jsonEqual([]byte(`{"a":1}`), []byte(`{"a":2}`)))
	assert.False(t, jsonEqual([]byte(`not json`), []byte(`{}`)))
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[{"path":"/health","critical":true}]}`), 0o644))
	targets, err := loadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.True(t, targets[0].Critical)

	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[]}`), 0o644))
	_, err = loadTargets(path)
	assert.Error(t, err)
}

func TestCommandFailsOnBreakingDiff(t *testing.T) {
	goSrv := fakeServer(t, http.StatusForbidden, "{}")
	legacySrv := fakeServer(t, http.StatusOK, "{}")
	path := filepath.Join(t.TempDir(), "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[{"method":"POST","path":"/push","form":{"content":"x"},"critical":true}]}`), 0o644))

	var out bytes.Buffer
	cmd := newCommand(zap.NewNop(), &out)
	cmd.SetArgs([]string{"--go-base", goSrv.URL, "--legacy-base", legacySrv.URL, "--targets", path})
	assert.Error(t, cmd.Execute())
	assert.Contains(t, out.String(), "[DIFF]")
}
