// Package client implements the chat client's two cooperating tasks (spec
// §4.9/C9-C10): a receive task that drives the handshake's naming state
// machine and renders server events, and a send task that forwards stdin
// lines once negotiation has completed.
package client

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"relaychat/internal/protocol"
	"relaychat/internal/wire"
)

// Exit codes, per spec §6/§7. Usage errors (exit 1) are argument/authfile
// concerns handled entirely in cmd/client, before a Client is ever built.
const (
	ExitOK    = 0
	ExitComms = 2
	ExitKick  = 3
	ExitAuth  = 4
)

// namingState is ClientNamingState from spec §3: the only state shared
// between the receive and send tasks, guarded by one mutex. negotiated
// gates the send task's first transmission — it must not race the
// handshake (spec §5/§9), so waiters block on a condition variable rather
// than polling a flag.
type namingState struct {
	mu         sync.Mutex
	cond       *sync.Cond
	baseName   string
	current    string
	collision  int
	negotiated bool
	aborted    bool
}

func newNamingState(base string) *namingState {
	s := &namingState{baseName: base, current: base, collision: -1}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// onCollision advances past a NAME_TAKEN: collision_index increments from
// its initial -1, and current becomes base_name concatenated with its
// decimal form (spec §3).
func (s *namingState) onCollision() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collision++
	s.current = s.baseName + strconv.Itoa(s.collision)
}

func (s *namingState) name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// markNegotiated unblocks any waiter. Called exactly once, on the OK that
// ends name negotiation (not the earlier one that ends authentication).
func (s *namingState) markNegotiated() {
	s.mu.Lock()
	s.negotiated = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// waitNegotiated blocks until negotiation completes or abort unblocks it
// first (receive ended without ever reaching ACTIVE), reporting which.
func (s *namingState) waitNegotiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.negotiated && !s.aborted {
		s.cond.Wait()
	}
	return s.negotiated
}

// abort unblocks any waiter without negotiating, so send never waits
// forever on a connection receive has already given up on.
func (s *namingState) abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// handshakePhase tracks which OK: the receive task is currently expecting,
// since the wire protocol itself doesn't distinguish them (spec §8
// property 5: one OK ends auth, a second ends name negotiation).
type handshakePhase int

const (
	phaseAuth handshakePhase = iota
	phaseName
	phaseActive
)

// Client runs the two tasks of §4.9 over a single connection.
type Client struct {
	conn   *wire.Conn
	secret string
	in     *bufio.Scanner
	stdout io.Writer
	diag   io.Writer
	naming *namingState
}

// New returns a Client that will negotiate name, falling back through
// collisions, and exchange secret as its auth payload.
func New(conn *wire.Conn, name, secret string, stdin io.Reader, stdout, diag io.Writer) *Client {
	return &Client{
		conn:   conn,
		secret: secret,
		in:     bufio.NewScanner(stdin),
		stdout: stdout,
		diag:   diag,
		naming: newNamingState(name),
	}
}

// Run starts both tasks and returns the process exit code belonging to
// whichever finishes first — the tasks never coordinate cleanup (spec §7).
func (c *Client) Run() int {
	done := make(chan int, 2)
	go func() { done <- c.receive() }()
	go func() {
		// A send task released by abort (receive ended before ACTIVE)
		// reports nothing, so receive's own exit code is the one returned.
		if !c.naming.waitNegotiated() {
			return
		}
		done <- c.send()
	}()
	return <-done
}

func (c *Client) receive() int {
	// Whatever the outcome, unblock a send task still waiting on
	// negotiation that will now never complete.
	defer c.naming.abort()

	phase := phaseAuth
	awaitingAuthReply := false

	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			if awaitingAuthReply {
				fmt.Fprintln(c.diag, "Authentication error")
				return ExitAuth
			}
			fmt.Fprintln(c.diag, "Communications error")
			return ExitComms
		}
		rec := protocol.Parse(line)

		switch rec.Tag {
		case protocol.Auth:
			if err := c.conn.WriteLine(protocol.Encode(protocol.Auth, c.secret)); err != nil {
				fmt.Fprintln(c.diag, "Communications error")
				return ExitComms
			}
			awaitingAuthReply = true

		case protocol.OK:
			awaitingAuthReply = false
			switch phase {
			case phaseAuth:
				phase = phaseName
			case phaseName:
				phase = phaseActive
				c.naming.markNegotiated()
			}

		case protocol.Who:
			if err := c.conn.WriteLine(protocol.Encode(protocol.Name, c.naming.name())); err != nil {
				fmt.Fprintln(c.diag, "Communications error")
				return ExitComms
			}

		case protocol.NameTaken:
			c.naming.onCollision()

		case protocol.Enter:
			fmt.Fprintf(c.stdout, "(%s has entered the chat)\n", rec.Payload)

		case protocol.Leave:
			fmt.Fprintf(c.stdout, "(%s has left the chat)\n", rec.Payload)

		case protocol.Msg:
			name, text, _ := strings.Cut(rec.Payload, ":")
			fmt.Fprintf(c.stdout, "%s: %s\n", name, text)

		case protocol.List:
			fmt.Fprintf(c.stdout, "(current chatters: %s)\n", rec.Payload)

		case protocol.Kick:
			fmt.Fprintln(c.diag, "Kicked")
			return ExitKick
		}
	}
}

func (c *Client) send() int {
	if !c.naming.waitNegotiated() {
		return ExitComms
	}

	for c.in.Scan() {
		line := c.in.Text()
		if strings.HasPrefix(line, "*") {
			_ = c.conn.WriteLine(line[1:])
		} else {
			_ = c.conn.WriteLine(protocol.Encode(protocol.Say, line))
		}
	}
	return ExitOK
}
