package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stats are the gateway's traffic and drop counters since start.
type Stats struct {
	RadioRx       atomic.Int64 // frames received from the radio
	RadioBad      atomic.Int64 // frames failing header/checksum
	RadioTxOK     atomic.Int64 // sends the radio reported delivered
	RadioTxFail   atomic.Int64
	RadioDropped  atomic.Int64 // events lost to a full radio queue
	HostLines     atomic.Int64 // complete lines read from the host
	HostDropped   atomic.Int64 // lines lost to a full line queue
	LineOverflow  atomic.Int64
	Commands      atomic.Int64 // host commands dispatched to the radio
	CommandErrors atomic.Int64
}

// Snapshot of the counters.
type Snapshot struct {
	RadioRx, RadioBad, RadioTxOK, RadioTxFail, RadioDropped int64
	HostLines, HostDropped, LineOverflow                    int64
	Commands, CommandErrors                                 int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RadioRx:       s.RadioRx.Load(),
		RadioBad:      s.RadioBad.Load(),
		RadioTxOK:     s.RadioTxOK.Load(),
		RadioTxFail:   s.RadioTxFail.Load(),
		RadioDropped:  s.RadioDropped.Load(),
		HostLines:     s.HostLines.Load(),
		HostDropped:   s.HostDropped.Load(),
		LineOverflow:  s.LineOverflow.Load(),
		Commands:      s.Commands.Load(),
		CommandErrors: s.CommandErrors.Load(),
	}
}

// report logs the counters every interval when anything changed.
func (s *Stats) report(ctx context.Context, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var prev Snapshot
	for {
		select {
		case <-ticker.C:
			cur := s.Snapshot()
			if cur == prev {
				continue
			}
			log.Info("stats",
				zap.Int64("radio_rx", cur.RadioRx),
				zap.Int64("radio_bad", cur.RadioBad),
				zap.Int64("radio_tx_ok", cur.RadioTxOK),
				zap.Int64("radio_tx_fail", cur.RadioTxFail),
				zap.Int64("radio_dropped", cur.RadioDropped),
				zap.Int64("host_lines", cur.HostLines),
				zap.Int64("host_dropped", cur.HostDropped),
				zap.Int64("line_overflow", cur.LineOverflow),
				zap.Int64("commands", cur.Commands),
				zap.Int64("command_errors", cur.CommandErrors),
			)
			prev = cur
		case <-ctx.Done():
			return
		}
	}
}
