package media

import "sync"

// Stream is an acquired capture handle.
type Stream struct {
	id      string
	kind    Kind
	surface Surface

	mu       sync.Mutex
	live     map[TrackKind]bool
	released bool
	notified bool
}

func newStream(kind Kind, c *Capture) *Stream {
	s := &Stream{
		id:      c.StreamID,
		kind:    kind,
		surface: c.Surface,
		live:    make(map[TrackKind]bool, len(c.Tracks)),
	}
	for _, t := range c.Tracks {
		s.live[t] = true
	}
	return s
}

func (s *Stream) ID() string       { return s.id }
func (s *Stream) Kind() Kind       { return s.kind }
func (s *Stream) Surface() Surface { return s.surface }

// Live reports whether the track is present and has not ended. A nil or
// released stream has no live tracks.
func (s *Stream) Live(t TrackKind) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.released && s.live[t]
}

// Active reports whether any track is still live.
func (s *Stream) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	for _, live := range s.live {
		if live {
			return true
		}
	}
	return false
}

// release marks the stream released and reports whether this call did it.
func (s *Stream) release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.released = true
	for t := range s.live {
		s.live[t] = false
	}
	return true
}

// end marks a track ended and reports whether the involuntary-stop
// notification is due: only the first ending on an unreleased stream.
func (s *Stream) end(t TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[t] = false
	if s.released || s.notified {
		return false
	}
	s.notified = true
	return true
}
