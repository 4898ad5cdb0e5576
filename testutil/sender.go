package testutil

import (
	"fmt"
	"sort"
	"sync"
)

// RecordingSender records lines sent to clients. It satisfies the router's
// Sender interface.
type RecordingSender struct {
	mu        sync.Mutex
	perClient map[string][]string
	broadcast []string

	// Clients lists the ids a broadcast reaches. Broadcast lines are also
	// appended to each listed client's log.
	Clients []string
	// Fail makes SendToClient return an error for the listed ids.
	Fail map[string]bool
}

// NewRecordingSender creates a sender that knows about clients.
func NewRecordingSender(clients ...string) *RecordingSender {
	return &RecordingSender{
		perClient: make(map[string][]string),
		Clients:   clients,
		Fail:      make(map[string]bool),
	}
}

// SendToClient records line for id.
func (s *RecordingSender) SendToClient(id, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail[id] {
		return fmt.Errorf("send to %s failed", id)
	}
	s.perClient[id] = append(s.perClient[id], line)
	return nil
}

// SendToAll records line as a broadcast.
func (s *RecordingSender) SendToAll(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broadcast = append(s.broadcast, line)
	for _, id := range s.Clients {
		s.perClient[id] = append(s.perClient[id], line)
	}
}

// Lines returns what id received.
func (s *RecordingSender) Lines(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.perClient[id]...)
}

// Broadcasts returns every broadcast line in order.
func (s *RecordingSender) Broadcasts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.broadcast...)
}

// Recipients returns the sorted ids that received at least one direct line.
func (s *RecordingSender) Recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.perClient))
	for id, lines := range s.perClient {
		if len(lines) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Reset forgets everything recorded.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perClient = make(map[string][]string)
	s.broadcast = nil
}
