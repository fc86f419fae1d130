// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection echo sessions. Each Session maps to one upgraded stream,
// relays its messages back in arrival order and reports the connection
// metrics to an api.Sink. Finalization runs exactly once per session,
// including on transport errors and shutdown.
//
// Registry offers a sharded index of live sessions for debug probes.

package session
