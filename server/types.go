package server

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/internal/session"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr       string        // TCP bind address, e.g. ":8080"
	HandshakeTimeout time.Duration // deadline for reading the request and answering it
	ShutdownTimeout  time.Duration // how long Serve waits for sessions after shutdown
	ReadLimit        int64         // maximum message size, 0 = unlimited
	ReusePort        bool          // set SO_REUSEPORT on the listening socket
	Routes           []StaticRoute // static content for plain requests
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":8080",
		HandshakeTimeout: 10 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Server accepts TCP connections, answers plain HTTP requests and runs an
// echo session for every successful WebSocket upgrade.
type Server struct {
	cfg        *Config
	classifier *Classifier
	sink       api.Sink
	log        zerolog.Logger
	probes     *control.DebugProbes
	sessions   *session.Registry

	mu      sync.Mutex
	ln      net.Listener
	serving bool
}
