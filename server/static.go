// File: server/static.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"io/fs"
	"net/http"

	"github.com/momentics/hioload-echo/api"
)

// ContentSource produces a static payload at lookup time.
type ContentSource interface {
	Load() ([]byte, error)
}

// FileSource reads Name from FS on every lookup, so a file replaced on disk
// is picked up by the next request.
type FileSource struct {
	FS   fs.FS
	Name string
}

// Load implements ContentSource.
func (s FileSource) Load() ([]byte, error) {
	b, err := fs.ReadFile(s.FS, s.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrContentUnavailable, err)
	}
	return b, nil
}

// BytesSource serves a fixed payload.
type BytesSource []byte

// Load implements ContentSource.
func (b BytesSource) Load() ([]byte, error) { return b, nil }

// StaticRoute maps a request path to a content source.
type StaticRoute struct {
	Path        string
	ContentType string
	Source      ContentSource
}

// IndexRoute serves index.html from fsys at "/".
func IndexRoute(fsys fs.FS) StaticRoute {
	return StaticRoute{
		Path:        "/",
		ContentType: "text/html",
		Source:      FileSource{FS: fsys, Name: "index.html"},
	}
}

func (r StaticRoute) respond() PlainResponse {
	if r.Source == nil {
		return notFound(fmt.Errorf("%w: no source for %s", api.ErrContentUnavailable, r.Path))
	}
	body, err := r.Source.Load()
	if err != nil {
		return notFound(err)
	}
	h := http.Header{}
	if r.ContentType != "" {
		h.Set("Content-Type", r.ContentType)
	}
	return PlainResponse{Status: http.StatusOK, Header: h, Body: body}
}

func notFound(err error) PlainResponse {
	return PlainResponse{Status: http.StatusNotFound, Header: http.Header{}, Body: notFoundBody, Err: err}
}
