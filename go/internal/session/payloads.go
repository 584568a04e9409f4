package session

import (
	"encoding/json"
	"time"
)

// Event types carried on the meeting events stream.
const (
	EventTypeMeetingUpdated       = "MeetingUpdated"
	EventTypeBreakoutRoomsUpdated = "BreakoutRoomsUpdated"
	EventTypeMeetingLoading       = "MeetingLoading"
)

// Envelope wraps every event published on the meeting events stream.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	MeetingID string          `json:"meetingId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MeetingPayload is the payload for a MeetingUpdated event. Duration and
// creation time may be absent while the meeting is still being set up.
type MeetingPayload struct {
	MeetingID         string `json:"meetingId"`
	IsBreakout        bool   `json:"isBreakout"`
	DurationInSeconds *int   `json:"durationInSeconds,omitempty"`
	CreatedTime       *int64 `json:"createdTime,omitempty"` // unix ms
}

// BreakoutRoom is one entry of a BreakoutRoomsUpdated event.
type BreakoutRoom struct {
	BreakoutRoomID    string `json:"breakoutRoomId"`
	DurationInSeconds int    `json:"durationInSeconds"`
	StartedAt         string `json:"startedAt"`
}

// BreakoutRoomsPayload is the payload for a BreakoutRoomsUpdated event.
type BreakoutRoomsPayload struct {
	BreakoutRoom []BreakoutRoom `json:"breakoutRoom"`
}
