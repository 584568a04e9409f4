// Package session supplies the countdown engine with the current meeting or
// breakout session, fed from the meeting events stream.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/roomclock/go/internal/countdown"
	"github.com/rs/zerolog/log"
)

// Snapshot is what the store derives from the latest events.
type Snapshot struct {
	MeetingID string
	Session   countdown.Session
	// BreakoutDuration is set when the countdown describes a breakout room
	// duration, which selects the breakout wording for alerts and the closing
	// message.
	BreakoutDuration bool
}

// Store holds the latest session data for one meeting. Absent data means the
// session is still loading.
type Store struct {
	meetingID        string
	breakoutDuration bool

	mu       sync.RWMutex
	meeting  *MeetingPayload
	breakout *BreakoutRoomsPayload

	// changes is a cap-1 channel; a pending signal coalesces further updates.
	changes chan struct{}
}

// NewStore tracks meetingID. With breakoutDuration set the session is taken
// from the first breakout room instead of the meeting itself.
func NewStore(meetingID string, breakoutDuration bool) *Store {
	return &Store{
		meetingID:        meetingID,
		breakoutDuration: breakoutDuration,
		changes:          make(chan struct{}, 1),
	}
}

// MeetingID returns the meeting this store tracks.
func (s *Store) MeetingID() string { return s.meetingID }

// Changes signals after every update.
func (s *Store) Changes() <-chan struct{} { return s.changes }

// Get returns the current session, or false while loading.
func (s *Store) Get() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.breakoutDuration {
		if s.breakout == nil {
			return Snapshot{}, false
		}
		snap := Snapshot{MeetingID: s.meetingID, BreakoutDuration: true}
		if len(s.breakout.BreakoutRoom) == 0 {
			return snap, true
		}
		first := s.breakout.BreakoutRoom[0]
		started, err := parseStartedAt(first.StartedAt)
		if err != nil {
			log.Warn().Err(err).Str("meeting_id", s.meetingID).Msg("breakout room has no usable start time")
			return snap, true
		}
		snap.Session = countdown.Session{
			ReferenceStartedTime: started,
			DurationSeconds:      first.DurationInSeconds,
		}
		return snap, true
	}

	if s.meeting == nil {
		return Snapshot{}, false
	}
	m := s.meeting
	snap := Snapshot{
		MeetingID:        s.meetingID,
		BreakoutDuration: m.IsBreakout,
		Session:          countdown.Session{IsBreakout: m.IsBreakout},
	}
	if m.DurationInSeconds != nil {
		snap.Session.DurationSeconds = *m.DurationInSeconds
	}
	if m.CreatedTime != nil {
		snap.Session.ReferenceStartedTime = *m.CreatedTime
	}
	return snap, true
}

// SetMeeting stores meeting metadata.
func (s *Store) SetMeeting(p MeetingPayload) {
	s.mu.Lock()
	s.meeting = &p
	s.mu.Unlock()
	s.notify()
}

// SetBreakoutRooms stores breakout room data.
func (s *Store) SetBreakoutRooms(p BreakoutRoomsPayload) {
	s.mu.Lock()
	s.breakout = &p
	s.mu.Unlock()
	s.notify()
}

// Clear drops everything so the session reads as loading again.
func (s *Store) Clear() {
	s.mu.Lock()
	s.meeting = nil
	s.breakout = nil
	s.mu.Unlock()
	s.notify()
}

// Apply routes an event to the matching setter. Events for other meetings and
// unknown event types are ignored.
func (s *Store) Apply(env Envelope) error {
	if env.MeetingID != s.meetingID {
		return nil
	}

	switch env.EventType {
	case EventTypeMeetingUpdated:
		var p MeetingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal MeetingUpdated payload: %w", err)
		}
		s.SetMeeting(p)

	case EventTypeBreakoutRoomsUpdated:
		var p BreakoutRoomsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal BreakoutRoomsUpdated payload: %w", err)
		}
		s.SetBreakoutRooms(p)

	case EventTypeMeetingLoading:
		s.Clear()

	default:
		log.Warn().
			Str("event_type", env.EventType).
			Str("meeting_id", env.MeetingID).
			Msg("unknown event type - ignoring")
	}
	return nil
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

var startedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseStartedAt accepts the timestamp shapes the breakout service emits and
// returns unix ms. Timestamps without a zone are taken as UTC.
func parseStartedAt(v string) (int64, error) {
	for _, layout := range startedAtLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized startedAt %q", v)
}
