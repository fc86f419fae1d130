// File: cmd/wsecho-client/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Probe client for wsecho:
// - Optionally checks the plain HTTP health response first
// - Opens -conns parallel WebSocket connections
// - Sends -count uniquely tagged messages per connection and verifies each echo
// - Exits non-zero on any mismatch, error or timeout

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-echo/control"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	path := flag.String("path", "/", "WebSocket path")
	conns := flag.Int("conns", 1, "parallel connections")
	count := flag.Int("count", 3, "messages per connection")
	binary := flag.Bool("binary", false, "send binary instead of text messages")
	health := flag.Bool("health", true, "GET /healthz before dialing")
	timeout := flag.Duration("timeout", 10*time.Second, "overall deadline")
	flag.Parse()

	log, err := control.NewLogger(control.LoggerConfig{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	if *health {
		if err := checkHealth(ctx, *addr); err != nil {
			log.Error().Err(err).Msg("health check failed")
			os.Exit(1)
		}
		log.Info().Msg("health check OK")
	}

	msgType := websocket.TextMessage
	if *binary {
		msgType = websocket.BinaryMessage
	}
	u := url.URL{Scheme: "ws", Host: *addr, Path: *path}

	var echoed atomic.Int64
	var failed atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *conns; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			wlog := log.With().Int("conn", id).Logger()
			n, err := probe(ctx, u.String(), msgType, *count, wlog)
			echoed.Add(int64(n))
			if err != nil {
				failed.Add(1)
				wlog.Error().Err(err).Msg("probe failed")
			}
		}(i)
	}
	wg.Wait()

	log.Info().
		Int64("echoed", echoed.Load()).
		Int64("failed_conns", failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("done")
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func checkHealth(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		return fmt.Errorf("unexpected health response %d %q", resp.StatusCode, body)
	}
	return nil
}

// probe sends count messages over one connection and verifies each echo
// before sending the next. It returns the number of verified echoes.
func probe(ctx context.Context, target string, msgType, count int, log zerolog.Logger) (int, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer c.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.SetReadDeadline(dl)
	}

	for i := 0; i < count; i++ {
		want := []byte(uuid.NewString())
		if err := c.WriteMessage(msgType, want); err != nil {
			return i, fmt.Errorf("write: %w", err)
		}
		mt, got, err := c.ReadMessage()
		if err != nil {
			return i, fmt.Errorf("read: %w", err)
		}
		if mt != msgType || string(got) != string(want) {
			return i, errors.New("echo mismatch")
		}
		log.Debug().Str("payload", string(got)).Msg("echo verified")
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return count, nil
}
