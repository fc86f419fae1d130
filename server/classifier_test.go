// File: server/classifier_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"net/http"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-echo/api"
)

func header(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func TestClassifyHealth(t *testing.T) {
	c := NewClassifier()
	cases := map[string]*Request{
		"no upgrade header":  {Method: "GET", Path: "/healthz", Header: header()},
		"wrong token":        {Method: "GET", Path: "/", Header: header("Upgrade", "h2c")},
		"empty token":        {Method: "GET", Path: "/ws", Header: header("Upgrade", "")},
		"post with no token": {Method: "POST", Path: "/anything", Header: header("Content-Type", "text/plain")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			d := c.Classify(req)
			resp, ok := d.(PlainResponse)
			require.True(t, ok, "expected PlainResponse, got %T", d)
			assert.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, []byte("OK"), resp.Body)
			assert.Empty(t, resp.Header)
			assert.NoError(t, resp.Err)
		})
	}
}

func TestClassifyUpgrade(t *testing.T) {
	c := NewClassifier(StaticRoute{Path: "/", ContentType: "text/html", Source: BytesSource("<html/>")})
	for _, v := range []string{"websocket", "WebSocket", " WEBSOCKET "} {
		d := c.Classify(&Request{Method: "GET", Path: "/", Header: header("Upgrade", v)})
		assert.Equal(t, DeferToUpgrade{}, d, "Upgrade: %q", v)
	}
}

func TestClassifyStatic(t *testing.T) {
	fsys := fstest.MapFS{"index.html": {Data: []byte("<h1>echo</h1>")}}
	c := NewClassifier(IndexRoute(fsys))

	d := c.Classify(&Request{Method: "GET", Path: "/", Header: header()})
	resp, ok := d.(PlainResponse)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte("<h1>echo</h1>"), resp.Body)

	// Paths without a route still get the health response.
	d = c.Classify(&Request{Method: "GET", Path: "/healthz", Header: header()})
	assert.Equal(t, []byte("OK"), d.(PlainResponse).Body)
}

func TestClassifyStaticUnavailable(t *testing.T) {
	c := NewClassifier(
		IndexRoute(fstest.MapFS{}),
		StaticRoute{Path: "/nil"},
	)
	for _, path := range []string{"/", "/nil"} {
		resp, ok := c.Classify(&Request{Method: "GET", Path: path, Header: header()}).(PlainResponse)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, resp.Status)
		assert.Equal(t, []byte("Not Found"), resp.Body)
		assert.ErrorIs(t, resp.Err, api.ErrContentUnavailable)
	}
}

func TestClassifyReadsSourceEachTime(t *testing.T) {
	fsys := fstest.MapFS{}
	c := NewClassifier(IndexRoute(fsys))
	req := &Request{Method: "GET", Path: "/", Header: header()}

	assert.Equal(t, http.StatusNotFound, c.Classify(req).(PlainResponse).Status)
	fsys["index.html"] = &fstest.MapFile{Data: []byte("late")}
	assert.Equal(t, []byte("late"), c.Classify(req).(PlainResponse).Body)
}
