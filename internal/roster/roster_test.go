package roster

import (
	"bufio"
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/wire"
)

// newTestConn returns a connected *wire.Conn whose peer side is drained
// continuously in the background, so broadcastLocked's writes never block
// waiting for a reader (net.Pipe is unbuffered/synchronous).
func newTestConn(t *testing.T) *wire.Conn {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() { server.Close(); peer.Close() })

	go func() {
		r := bufio.NewReader(peer)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	}()

	return wire.NewConn(server)
}

// newBrokenConn returns a *wire.Conn whose underlying connection is already
// closed, so any WriteLine on it fails immediately.
func newBrokenConn(t *testing.T) *wire.Conn {
	t.Helper()
	server, peer := net.Pipe()
	server.Close()
	peer.Close()
	return wire.NewConn(server)
}

func TestJoinRejectsDuplicateAndEmpty(t *testing.T) {
	r := New()
	var out bytes.Buffer

	entry, collided := r.Join(&out, "Fred", newTestConn(t))
	require.False(t, collided)
	require.NotNil(t, entry)
	require.Equal(t, "Fred", entry.Name)

	entry, collided = r.Join(&out, "Fred", newTestConn(t))
	assert.Nil(t, entry)
	assert.True(t, collided, "duplicate name must be rejected")

	entry, collided = r.Join(&out, "", newTestConn(t))
	assert.Nil(t, entry)
	assert.True(t, collided, "empty name must be rejected")
}

func TestJoinRollsBackWhenOKWriteFails(t *testing.T) {
	r := New()
	var out bytes.Buffer

	entry, collided := r.Join(&out, "Fred", newBrokenConn(t))
	assert.Nil(t, entry)
	assert.False(t, collided, "a write failure is not a name collision")
	assert.False(t, r.Contains("Fred"), "failed join must leave no trace in the roster")
	assert.Empty(t, out.String(), "no join line should print when announcement never happens")
}

func TestJoinKeepsAscendingOrder(t *testing.T) {
	r := New()
	var out bytes.Buffer
	for _, name := range []string{"Charlie", "Alice", "Bob"} {
		_, collided := r.Join(&out, name, newTestConn(t))
		require.False(t, collided)
	}
	_, stats := r.Snapshot()
	var got []string
	for _, c := range stats {
		got = append(got, c.Name)
	}
	assert.Equal(t, []string{"Alice", "Bob", "Charlie"}, got)
}

func TestJoinPrintsAndBroadcastsEnter(t *testing.T) {
	r := New()
	var out bytes.Buffer
	entry, collided := r.Join(&out, "Fred", newTestConn(t))
	require.False(t, collided)
	require.NotNil(t, entry)
	assert.Contains(t, out.String(), "(Fred has entered the chat)\n")
}

func TestSayBumpsCountersAndPrintsLocalLine(t *testing.T) {
	r := New()
	var joinOut bytes.Buffer
	entry, _ := r.Join(&joinOut, "Fred", newTestConn(t))
	require.NotNil(t, entry)

	var out bytes.Buffer
	start := time.Now()
	r.Say(&out, entry, "hello")
	elapsed := time.Since(start)

	assert.Contains(t, out.String(), "Fred: hello\n")
	assert.GreaterOrEqual(t, elapsed, sayPacingDelay)

	counters, clients := r.Snapshot()
	assert.EqualValues(t, 1, counters.Say)
	require.Len(t, clients, 1)
	assert.EqualValues(t, 1, clients[0].Say)
}

func TestSayScrubsNonPrintables(t *testing.T) {
	r := New()
	var joinOut bytes.Buffer
	entry, _ := r.Join(&joinOut, "C", newTestConn(t))

	var out bytes.Buffer
	r.Say(&out, entry, "hi\x01there")
	assert.Contains(t, out.String(), "C: hi?there\n")
}

func TestKickSelfReportsSelfKicked(t *testing.T) {
	r := New()
	var joinOut bytes.Buffer
	entry, _ := r.Join(&joinOut, "Fred", newTestConn(t))

	var out bytes.Buffer
	selfKicked := r.Kick(&out, entry, "Fred")
	assert.True(t, selfKicked)
	assert.False(t, r.Contains("Fred"))
	assert.Contains(t, out.String(), "(Fred has left the chat)\n")
}

func TestKickOtherDoesNotEndKickerSession(t *testing.T) {
	r := New()
	var joinOut bytes.Buffer
	fred, _ := r.Join(&joinOut, "Fred", newTestConn(t))
	_, collided := r.Join(&joinOut, "Barney", newTestConn(t))
	require.False(t, collided)

	var out bytes.Buffer
	selfKicked := r.Kick(&out, fred, "Barney")
	assert.False(t, selfKicked)
	assert.False(t, r.Contains("Barney"))
	assert.True(t, r.Contains("Fred"))
}

func TestDisconnectIsIdempotentAndDoesNotBumpLeave(t *testing.T) {
	r := New()
	var joinOut bytes.Buffer
	entry, _ := r.Join(&joinOut, "Fred", newTestConn(t))

	var out bytes.Buffer
	r.Disconnect(&out, entry)
	assert.False(t, r.Contains("Fred"))

	counters, _ := r.Snapshot()
	assert.EqualValues(t, 0, counters.Leave)

	// Second call after removal must be a no-op, not a double broadcast.
	out.Reset()
	r.Disconnect(&out, entry)
	assert.Empty(t, out.String())
}

func TestLeaveBumpsLeaveCounter(t *testing.T) {
	r := New()
	var joinOut bytes.Buffer
	entry, _ := r.Join(&joinOut, "Fred", newTestConn(t))

	var out bytes.Buffer
	r.Leave(&out, entry)
	counters, _ := r.Snapshot()
	assert.EqualValues(t, 1, counters.Leave)
}
