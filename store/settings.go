package store

import (
	"sort"
	"strings"
	"sync"
)

// SettingsStore maps capability name to setting name to value.
type SettingsStore struct {
	mu       sync.RWMutex
	settings map[string]map[string]string
}

// NewSettingsStore creates an empty store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{settings: make(map[string]map[string]string)}
}

// Merge writes values into capability's settings, keeping settings not named
// in values. It returns the capability's full snapshot after the merge.
func (s *SettingsStore) Merge(capability string, values map[string]string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.settings[capability]
	if !ok {
		current = make(map[string]string, len(values))
		s.settings[capability] = current
	}
	for k, v := range values {
		current[k] = v
	}
	return copySettings(current)
}

// Snapshot returns a copy of capability's settings.
func (s *SettingsStore) Snapshot(capability string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current, ok := s.settings[capability]
	if !ok {
		return nil, false
	}
	return copySettings(current), true
}

// Capabilities returns the sorted capability names with settings.
func (s *SettingsStore) Capabilities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.settings))
	for n := range s.settings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Payload renders settings as "name=value\n" lines sorted by name.
func Payload(settings map[string]string) string {
	names := make([]string, 0, len(settings))
	for n := range settings {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(settings[n])
		b.WriteByte('\n')
	}
	return b.String()
}

func copySettings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
