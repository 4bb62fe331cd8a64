package session

import (
	"log"
)

// Channel is one realtime duplex connection to a viewer. WriteOutput
// carries process output to the viewer; ReadInput blocks for the next
// keystroke payload and returns an error once the connection closes.
type Channel interface {
	WriteOutput(p []byte) error
	ReadInput() ([]byte, error)
}

// Relay binds one Channel to one Session for the channel's lifetime. The
// session's lifetime is bound to the viewer connection: when the channel
// closes, the session is torn down.
type Relay struct {
	registry *Registry
}

// NewRelay creates a Relay over the given registry.
func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// Attach runs for the whole life of the channel. On attach the session's
// accumulated output is replayed first, then live output is forwarded as
// produced. Every inbound payload is written verbatim to the process's
// stdin, without interpretation or batching.
func (r *Relay) Attach(sessionID string, channel Channel) error {
	s, err := r.registry.Get(sessionID)
	if err != nil {
		return err
	}

	// Viewer disconnect kills the session; there is no detach-and-resume.
	// That includes a viewer whose transport dies during history replay:
	// a session nobody can see anymore has no reason to keep running.
	defer r.registry.Close(sessionID)

	if err := s.Attach(channelWriter{channel}); err != nil {
		return err
	}
	log.Printf("[RELAY_ATTACHED] session %s task %s", s.ID(), s.TaskID())

	for {
		payload, err := channel.ReadInput()
		if err != nil {
			log.Printf("[RELAY_DETACHED] session %s: %v", sessionID, err)
			return nil
		}
		if len(payload) == 0 {
			continue
		}
		if _, err := s.Write(payload); err != nil {
			// Process side is gone; teardown happens in the deferred close.
			return nil
		}
	}
}

// channelWriter adapts a Channel to io.Writer for output forwarding.
type channelWriter struct {
	channel Channel
}

func (w channelWriter) Write(p []byte) (int, error) {
	if err := w.channel.WriteOutput(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
