// Package registry tracks the negotiated state of every connected client.
package registry

import (
	"sort"
	"strings"
	"sync"
)

type topicSet map[string]struct{}

func newTopicSet(topics []string) topicSet {
	s := make(topicSet, len(topics))
	for _, t := range topics {
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

func (s topicSet) sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type session struct {
	capabilityType string
	subscribed     topicSet
	published      topicSet
}

// Session is a read-only copy of a client's negotiated state.
type Session struct {
	ID             string
	CapabilityType string
	Subscribed     []string
	Published      []string
}

// Registry maps client ids to sessions.
//
// Replace swaps a session's topic sets under the write lock. Subscribers and
// MatchCapability read under the read lock, so a lookup observes either the
// old or the new sets of a session in full.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*session)}
}

// Replace creates or overwrites the session for id. Both topic sets are
// replaced entirely; duplicates collapse.
func (r *Registry) Replace(id, capabilityType string, subscribed, published []string) {
	next := &session{
		capabilityType: capabilityType,
		subscribed:     newTopicSet(subscribed),
		published:      newTopicSet(published),
	}

	r.mu.Lock()
	r.sessions[id] = next
	r.mu.Unlock()
}

// Remove drops the session for id and reports whether one existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Subscribers returns the sorted ids of sessions subscribed to any of keys.
// Each id appears once even when it matches several keys.
func (r *Registry) Subscribers(keys ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		for _, k := range keys {
			if _, ok := s.subscribed[k]; ok {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// MatchCapability returns the sorted ids of sessions whose capability type
// contains name. An empty name matches nobody.
func (r *Registry) MatchCapability(name string) []string {
	if name == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if strings.Contains(s.capabilityType, name) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Publishes reports whether id declared topic in its published set.
func (r *Registry) Publishes(id, topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	_, ok = s.published[topic]
	return ok
}

// Get returns a copy of the session for id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return Session{
		ID:             id,
		CapabilityType: s.capabilityType,
		Subscribed:     s.subscribed.sorted(),
		Published:      s.published.sorted(),
	}, true
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
