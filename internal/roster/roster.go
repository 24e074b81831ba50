// Package roster owns the server's shared, lock-protected state: the
// ordered set of connected clients and the aggregate server counters. A
// single mutex serializes every mutation — roster inserts/removes,
// broadcast fan-out, and counter increments — so that fan-out order and
// counter linearization never disagree (spec §5).
package roster

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"relaychat/internal/protocol"
	"relaychat/internal/wire"
)

// sayPacingDelay is the flood-pacing sleep enforced after every processed
// SAY, held inside the roster lock per spec §4.6/§9.
const sayPacingDelay = 100 * time.Millisecond

// Entry is one roster member: the server-side analogue of spec §3's
// ClientRecord. Name is the raw identity used for uniqueness and ordering;
// it is never itself mutated by display scrubbing.
type Entry struct {
	Name string
	Conn *wire.Conn

	Say  uint64
	Kick uint64
	List uint64
}

// Counters is ServerCounters from spec §3: process-wide, monotone,
// incremented only while the roster lock is held.
type Counters struct {
	Auth  uint64
	Name  uint64
	Say   uint64
	Kick  uint64
	List  uint64
	Leave uint64
}

// ClientStat is a point-in-time copy of one Entry's counters, used by the
// stats reporter (spec §4.8) so it never holds a reference into the live
// roster after the lock is released.
type ClientStat struct {
	Name string
	Say  uint64
	Kick uint64
	List uint64
}

// Roster is the shared, mutex-guarded state described in spec §3/§5.
type Roster struct {
	mu       sync.Mutex
	entries  []*Entry // kept sorted ascending by Name (byte-wise)
	counters Counters
}

// New returns an empty Roster.
func New() *Roster {
	return &Roster{}
}

// BumpAuth increments the server-wide auth counter. Called once per AUTH
// record received during handshake, regardless of outcome.
func (r *Roster) BumpAuth() {
	r.mu.Lock()
	r.counters.Auth++
	r.mu.Unlock()
}

// BumpName increments the server-wide name counter. Called once per NAME
// record received — including ones that collide, per spec §9.
func (r *Roster) BumpName() {
	r.mu.Lock()
	r.counters.Name++
	r.mu.Unlock()
}

// Contains reports whether name already exists in the roster.
func (r *Roster) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, found := r.indexOf(name)
	return found
}

// Join attempts to complete name negotiation for name in one lock
// acquisition: check-for-collision, insert, write the peer's `OK:`, print
// the local join line, and broadcast `ENTER` are all performed without
// ever releasing the lock in between. This matches `server.c`'s
// `name_handler`, which holds `client_handler`'s mutex continuously across
// the equivalent sequence — so no other session can observe the new entry
// (e.g. to `KICK` it) before its `ENTER` has already been broadcast, and
// none can broadcast a `LEAVE` for it first.
//
// Three outcomes:
//   - (entry, false): joined and announced. The caller proceeds to ACTIVE.
//   - (nil, true): name is empty or already taken. The caller sends
//     NAME_TAKEN and loops; nothing was mutated.
//   - (nil, false): the candidate was accepted and inserted, but writing
//     `OK:` to the peer failed (a blocking write that can fail if the peer
//     is already gone). The entry is rolled back before returning, so no
//     trace of it — and no ENTER — ever appears. The caller must abort the
//     session.
func (r *Roster) Join(stdout io.Writer, name string, conn *wire.Conn) (entry *Entry, collided bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return nil, true
	}
	if _, found := r.indexOf(name); found {
		return nil, true
	}

	e := &Entry{Name: name, Conn: conn}
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Name >= name })
	r.entries = append(r.entries, nil)
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e

	if err := conn.WriteLine(protocol.EncodeEmpty(protocol.OK)); err != nil {
		r.removeLocked(name)
		return nil, false
	}

	fmt.Fprintf(stdout, "(%s has entered the chat)\n", name)
	r.broadcastLocked(protocol.Enter, name)
	return e, false
}

// indexOf returns the slice index of name and whether it was found. Caller
// must hold r.mu.
func (r *Roster) indexOf(name string) (int, bool) {
	i := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].Name >= name })
	if i < len(r.entries) && r.entries[i].Name == name {
		return i, true
	}
	return i, false
}

// removeLocked deletes the entry named name, if present, and closes its
// connection. Caller must hold r.mu.
func (r *Roster) removeLocked(name string) bool {
	i, found := r.indexOf(name)
	if !found {
		return false
	}
	e := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	e.Conn.Close()
	return true
}

// namesLocked returns the current roster names in order. Caller must hold
// r.mu.
func (r *Roster) namesLocked() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// broadcastLocked writes a record to every current roster member, in
// roster order, including the originator. A write failure to one peer does
// not abort the fan-out — that peer's own session will observe the closed
// connection on its next read. Caller must hold r.mu.
func (r *Roster) broadcastLocked(tag protocol.Tag, payload string) {
	line := protocol.Encode(tag, payload)
	for _, e := range r.entries {
		_ = e.Conn.WriteLine(line)
	}
}

// Say performs the whole SAY pipeline under one lock acquisition: bump
// counters, scrub non-printables, print the local line, broadcast MSG to
// every peer, then pace. Holding the pacing sleep inside the lock is
// specified as-is (spec §4.6/§9) for behavioural compatibility with the
// source; it caps server-wide SAY throughput at one per pacing interval.
func (r *Roster) Say(stdout io.Writer, e *Entry, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Say++
	e.Say++

	name := protocol.ScrubNonPrintable(e.Name)
	message := protocol.ScrubNonPrintable(text)
	fmt.Fprintf(stdout, "%s: %s\n", name, message)
	r.broadcastLocked(protocol.Msg, name+":"+message)
	time.Sleep(sayPacingDelay)
}

// List returns the comma-joined roster names for a LIST response, bumping
// both the server and per-client list counters.
func (r *Roster) List(e *Entry) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.List++
	e.List++
	return protocol.JoinNames(r.namesLocked())
}

// Kick removes target from the roster on behalf of e, bumping counters,
// notifying the target, printing the departure line, and broadcasting
// LEAVE. It reports whether e kicked itself, in which case the caller's
// session loop must exit.
func (r *Roster) Kick(stdout io.Writer, e *Entry, target string) (selfKicked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Kick++
	e.Kick++

	i, found := r.indexOf(target)
	if !found {
		return false
	}
	victim := r.entries[i]
	_ = victim.Conn.WriteLine(protocol.EncodeEmpty(protocol.Kick))
	r.removeLocked(target)
	fmt.Fprintf(stdout, "(%s has left the chat)\n", target)
	r.broadcastLocked(protocol.Leave, target)

	return target == e.Name
}

// Leave removes e from the roster on its own request, printing and
// broadcasting its departure.
func (r *Roster) Leave(stdout io.Writer, e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Leave++
	r.removeLocked(e.Name)
	fmt.Fprintf(stdout, "(%s has left the chat)\n", e.Name)
	r.broadcastLocked(protocol.Leave, e.Name)
}

// Disconnect tears e down after an unexpected stream loss (no LEAVE
// record was received). It behaves like Leave but never increments the
// leave counter, per spec §4.6. A no-op if e was already removed (e.g. by
// a concurrent Kick).
func (r *Roster) Disconnect(stdout io.Writer, e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.indexOf(e.Name); !found {
		return
	}
	r.removeLocked(e.Name)
	fmt.Fprintf(stdout, "(%s has left the chat)\n", e.Name)
	r.broadcastLocked(protocol.Leave, e.Name)
}

// Size returns the current roster size.
func (r *Roster) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the current server counters and a per-client stat row
// for every roster member, in roster order, consistent as of one lock
// acquisition. Used by the stats reporter (spec §4.8).
func (r *Roster) Snapshot() (Counters, []ClientStat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]ClientStat, len(r.entries))
	for i, e := range r.entries {
		stats[i] = ClientStat{Name: e.Name, Say: e.Say, Kick: e.Kick, List: e.List}
	}
	return r.counters, stats
}
