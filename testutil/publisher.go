package testutil

import (
	"context"
	"sync"

	"github.com/rainerleuschke/tcp-bridge/bus"
)

// RecordingPublisher records published bus messages in order.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []bus.Message

	// Err, when set, is returned from Publish and nothing is recorded.
	Err error
}

// NewRecordingPublisher creates an empty publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

// Publish records msg.
func (p *RecordingPublisher) Publish(_ context.Context, msg bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.messages = append(p.messages, msg)
	return nil
}

// Messages returns everything published.
func (p *RecordingPublisher) Messages() []bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bus.Message(nil), p.messages...)
}

// OfType returns the published messages of type t.
func (p *RecordingPublisher) OfType(t bus.MessageType) []bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []bus.Message
	for _, m := range p.messages {
		if m.MessageType() == t {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets everything recorded.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}
