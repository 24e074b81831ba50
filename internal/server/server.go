// Package server implements the relay's connection lifecycle: accepting
// TCP connections (spec §4.1/C7), driving each through the handshake and
// session loop (§4.2-§4.6/C5-C6), and the SIGHUP-driven stats dump (§4.8/C8).
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"relaychat/internal/roster"
	"relaychat/internal/wire"
)

// Server holds everything one running relay instance needs: the shared
// roster, the configured secret, and the ambient logging/output streams.
type Server struct {
	Roster *roster.Roster
	secret string

	log    zerolog.Logger
	events *eventLog
	connID atomic.Uint64

	// Stdout carries the protocol-mandated literal join/leave/say lines
	// (spec §4). Diag carries the port announcement and the stats dump —
	// the two streams are kept separate so the literal protocol output is
	// never interleaved with operational diagnostics.
	Stdout io.Writer
	Diag   io.Writer
}

// New returns a Server bound to secret, ready to listen.
func New(secret string, log zerolog.Logger) *Server {
	return &Server{
		Roster: roster.New(),
		secret: secret,
		log:    log,
		events: newEventLog(log, 2),
		Stdout: os.Stdout,
		Diag:   os.Stderr,
	}
}

// Listen binds port (or an ephemeral port, if port is "0" or empty) on the
// loopback interface, matching the original's addr_set_up("localhost", ...).
// It announces the bound port on s.Diag before returning, per §4.1.
func (s *Server) Listen(port string) (net.Listener, error) {
	if port == "" {
		port = "0"
	}
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, err
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if ok {
		fmt.Fprintf(s.Diag, "%d\n", addr.Port)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled or the listener
// fails. With a context that is never cancelled (the real cmd/server never
// cancels it), this never returns except on a fatal listener error —
// matching the accept loop's "terminates only with the process" behaviour.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		return s.acceptLoop(ln)
	})

	err := g.Wait()
	s.events.Stop()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serve(nc)
	}
}

// serve drives one accepted connection through its entire lifecycle:
// handshake, active session, teardown.
func (s *Server) serve(nc net.Conn) {
	id := s.connID.Add(1)
	conn := wire.NewConn(nc)
	defer conn.Close()

	s.events.Logf("conn %d: accepted from %s", id, nc.RemoteAddr())

	entry, ok := s.handshake(conn)
	if !ok {
		s.events.Logf("conn %d: handshake aborted", id)
		return
	}

	s.events.Logf("conn %d: %s joined", id, entry.Name)
	s.sessionLoop(conn, entry)
	s.events.Logf("conn %d: %s session ended", id, entry.Name)
}
