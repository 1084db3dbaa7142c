// Package session defines the conversation state bag and the storage
// contract used to persist it between webhook events.
package session

import (
	"encoding/json"
	"sort"
	"sync"
)

// Session is an open key-value state bag for one user. Values must be
// JSON-serializable; the typed getters normalize the artifacts a decode
// round trip introduces (numbers come back as float64).
//
// A Session is not safe for unsynchronized concurrent mutation across
// events; the scene manager serializes whole passes per user id. The
// internal lock only keeps marshaling consistent with in-pass reads.
type Session struct {
	mu     sync.RWMutex
	values map[string]any
}

// New returns an empty session.
func New() *Session {
	return &Session{values: make(map[string]any)}
}

// FromMap builds a session over a copy of the provided mapping.
func FromMap(m map[string]any) *Session {
	s := New()
	for k, v := range m {
		s.values[k] = v
	}
	return s
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the raw value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes key from the session.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Reset removes every key from the session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any)
}

// Len reports the number of stored keys.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys returns the stored keys in sorted order.
func (s *Session) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetString returns the value under key when it is a string.
func (s *Session) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// GetInt returns the value under key as an int. Numeric values that
// went through a JSON round trip (float64, json.Number) are accepted.
func (s *Session) GetInt(key string) (int, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetFloat returns the value under key as a float64.
func (s *Session) GetFloat(key string) (float64, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// GetBool returns the value under key when it is a bool.
func (s *Session) GetBool(key string) (bool, bool) {
	v, ok := s.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Map returns a shallow snapshot of the stored values.
func (s *Session) Map() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy produced by a JSON round trip, so the copy
// carries the same value types a persisted session would.
func (s *Session) Clone() *Session {
	data, err := s.MarshalJSON()
	if err != nil {
		return FromMap(s.Map())
	}
	clone := New()
	if err := clone.UnmarshalJSON(data); err != nil {
		return FromMap(s.Map())
	}
	return clone
}

// MarshalJSON encodes the session as a plain JSON object.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.values)
}

// UnmarshalJSON replaces the session contents with the decoded object.
func (s *Session) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == nil {
		m = make(map[string]any)
	}
	s.values = m
	return nil
}
