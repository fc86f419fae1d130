// control/exporter.go
// Author: momentics <momentics@gmail.com>
//
// Periodic structured-log export of a Recorder snapshot.

package control

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogExporter writes the Recorder totals and the debug probe state to a
// logger on a fixed interval.
type LogExporter struct {
	rec      *Recorder
	probes   *DebugProbes
	interval time.Duration
	log      zerolog.Logger
}

// NewLogExporter creates a LogExporter. probes may be nil.
func NewLogExporter(rec *Recorder, probes *DebugProbes, interval time.Duration, log zerolog.Logger) *LogExporter {
	return &LogExporter{rec: rec, probes: probes, interval: interval, log: log}
}

// Run exports every interval until ctx is cancelled, then exports once more
// so the final totals are not lost.
func (e *LogExporter) Run(ctx context.Context) error {
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			e.Export()
			return nil
		case <-t.C:
			e.Export()
		}
	}
}

// Export logs a single snapshot.
func (e *LogExporter) Export() {
	ev := e.log.Info().Fields(e.rec.Snapshot())
	if e.probes != nil {
		ev = ev.Interface("probes", e.probes.DumpState())
	}
	ev.Msg("metrics snapshot")
}
