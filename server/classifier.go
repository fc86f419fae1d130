// File: server/classifier.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pre-handshake request classification: answer plainly or defer to upgrade.

package server

import (
	"net/http"

	"github.com/momentics/hioload-echo/protocol"
)

// Request is the pre-handshake view of an inbound request.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// Decision is the outcome of classifying a Request. It is one of
// PlainResponse or DeferToUpgrade.
type Decision interface {
	decision()
}

// PlainResponse is a complete response that ends the request.
type PlainResponse struct {
	Status int
	Header http.Header
	Body   []byte
	// Err records a recovered failure behind a degraded response, such as an
	// unavailable static content source. It is never sent to the peer.
	Err error
}

// DeferToUpgrade hands the request over to the WebSocket handshake.
type DeferToUpgrade struct{}

func (PlainResponse) decision()  {}
func (DeferToUpgrade) decision() {}

var (
	healthBody   = []byte("OK")
	notFoundBody = []byte("Not Found")
)

// Classifier decides, without side effects, how a request is answered.
// It is safe for concurrent use once built.
type Classifier struct {
	routes map[string]StaticRoute
}

// NewClassifier returns a Classifier serving the given static routes to
// plain requests. Later routes replace earlier ones with the same path.
func NewClassifier(routes ...StaticRoute) *Classifier {
	c := &Classifier{routes: make(map[string]StaticRoute, len(routes))}
	for _, r := range routes {
		c.routes[r.Path] = r
	}
	return c
}

// Classify applies the rules in order:
//  1. a request carrying "Upgrade: websocket" defers to the handshake;
//  2. a plain request for a configured static route gets that content, or
//     404 when its source is unavailable;
//  3. any other plain request gets 200 "OK".
func (c *Classifier) Classify(r *Request) Decision {
	if protocol.IsUpgradeRequest(r.Header) {
		return DeferToUpgrade{}
	}
	if route, ok := c.routes[r.Path]; ok {
		return route.respond()
	}
	return PlainResponse{Status: http.StatusOK, Header: http.Header{}, Body: healthBody}
}
