package server

import (
	"context"
	"fmt"
	"os"

	"relaychat/internal/metrics"
)

// RunStatsReporter blocks, dumping the roster + server counter snapshot to
// s.Diag each time a signal arrives on sig (conventionally SIGHUP), until
// ctx is cancelled. sync may be nil if the Prometheus bridge is disabled.
//
// The dump format matches the original server_stats handler: a @CLIENTS@
// section with one line per connected client, then a @SERVER@ section with
// the aggregate counters — in that order, every field present even when
// zero.
func (s *Server) RunStatsReporter(ctx context.Context, sig <-chan os.Signal, sync *metrics.Sync) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			s.dumpStats(sync)
		}
	}
}

func (s *Server) dumpStats(sync *metrics.Sync) {
	counters, clients := s.Roster.Snapshot()

	fmt.Fprintln(s.Diag, "@CLIENTS@")
	for _, c := range clients {
		fmt.Fprintf(s.Diag, "%s:SAY:%d:KICK:%d:LIST:%d\n", c.Name, c.Say, c.Kick, c.List)
	}
	fmt.Fprintln(s.Diag, "@SERVER@")
	fmt.Fprintf(s.Diag, "server:AUTH:%d:NAME:%d:SAY:%d:KICK:%d:LIST:%d:LEAVE:%d\n",
		counters.Auth, counters.Name, counters.Say, counters.Kick, counters.List, counters.Leave)

	if sync != nil {
		sync.Observe(counters)
	}
}
