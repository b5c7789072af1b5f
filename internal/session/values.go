package session

// UserIDKey is the claim holding the signed-in user's id.
const UserIDKey = "userId"

// Session is a decoded session payload. Values are loosely typed: anything
// that went through the cookie comes back as decoded JSON (numbers are
// float64).
type Session struct {
	id     string
	values map[string]any
}

// ID returns the session id, empty until the session is first committed.
func (s *Session) ID() string { return s.id }

// Get returns the value stored under key, or nil.
func (s *Session) Get(key string) any {
	if s == nil {
		return nil
	}
	return s.values[key]
}

// Set stores a value under key.
func (s *Session) Set(key string, v any) {
	if s.values == nil {
		s.values = map[string]any{}
	}
	s.values[key] = v
}

// Unset removes key.
func (s *Session) Unset(key string) {
	delete(s.values, key)
}

// Len returns the number of stored values.
func (s *Session) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}
