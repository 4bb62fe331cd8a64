package session

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory Channel for relay tests.
type fakeChannel struct {
	mu     sync.Mutex
	output []byte
	inputs chan []byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{inputs: make(chan []byte, 16)}
}

func (c *fakeChannel) WriteOutput(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = append(c.output, p...)
	return nil
}

func (c *fakeChannel) ReadInput() ([]byte, error) {
	payload, ok := <-c.inputs
	if !ok {
		return nil, io.EOF
	}
	return payload, nil
}

func (c *fakeChannel) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.output)
}

func TestRelayReplaysHistoryAndForwardsInput(t *testing.T) {
	r := testRegistry(t, "echo ready; cat")
	relay := NewRelay(r)

	s, err := r.Open("t-relay", Geometry{Rows: 24, Cols: 80})
	require.NoError(t, err)

	// Let the process produce output before the viewer shows up.
	require.Eventually(t, func() bool { return s.HistorySize() > 0 }, 5*time.Second, 10*time.Millisecond)

	channel := newFakeChannel()
	done := make(chan error, 1)
	go func() { done <- relay.Attach(s.ID(), channel) }()

	// History replay arrives before anything else.
	assert.Eventually(t, func() bool {
		return strings.Contains(channel.Output(), "ready")
	}, 5*time.Second, 10*time.Millisecond)

	// Input flows verbatim to the process; cat echoes it back out.
	channel.inputs <- []byte("marco\n")
	assert.Eventually(t, func() bool {
		return strings.Contains(channel.Output(), "marco")
	}, 5*time.Second, 10*time.Millisecond)

	// Closing the channel tears the session down.
	close(channel.inputs)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not return after channel close")
	}

	var notFound *SessionNotFoundError
	_, err = r.Get(s.ID())
	require.True(t, errors.As(err, &notFound))
}

// brokenChannel fails every write, like a transport that died right
// after the upgrade.
type brokenChannel struct{}

func (brokenChannel) WriteOutput(p []byte) error { return io.ErrClosedPipe }
func (brokenChannel) ReadInput() ([]byte, error) { return nil, io.EOF }

func TestRelayReplayFailureTearsDownSession(t *testing.T) {
	r := testRegistry(t, "echo ready; cat")
	relay := NewRelay(r)

	s, err := r.Open("t-broken", Geometry{Rows: 24, Cols: 80})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.HistorySize() > 0 }, 5*time.Second, 10*time.Millisecond)

	err = relay.Attach(s.ID(), brokenChannel{})
	require.Error(t, err)

	// No viewer ever saw the session; it must not linger as an orphan.
	var notFound *SessionNotFoundError
	_, err = r.Get(s.ID())
	require.True(t, errors.As(err, &notFound))
}

func TestRelayAttachUnknownSession(t *testing.T) {
	r := testRegistry(t, "cat")
	relay := NewRelay(r)

	err := relay.Attach("missing", newFakeChannel())
	var notFound *SessionNotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestRelayChannelCloseOnlyAffectsOwnSession(t *testing.T) {
	r := testRegistry(t, "cat")
	relay := NewRelay(r)

	first, err := r.Open("t-a", Geometry{Rows: 24, Cols: 80})
	require.NoError(t, err)
	second, err := r.Open("t-b", Geometry{Rows: 24, Cols: 80})
	require.NoError(t, err)

	channel := newFakeChannel()
	done := make(chan error, 1)
	go func() { done <- relay.Attach(first.ID(), channel) }()

	close(channel.inputs)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not return")
	}

	_, err = r.Get(first.ID())
	assert.Error(t, err)
	_, err = r.Get(second.ID())
	assert.NoError(t, err)
}
