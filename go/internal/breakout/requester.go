// Package breakout hands out breakout room join URLs, asking the meeting
// backend for one when it is not cached yet.
package breakout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	// RequestJoinURLMsg asks the backend to issue a join URL.
	RequestJoinURLMsg = "RequestBreakoutJoinURLReqMsg"
	// JoinURLEvtMsg carries an issued join URL back.
	JoinURLEvtMsg = "BreakoutRoomJoinURLEvtMsg"
	// RoomEndedEvtMsg drops every URL cached for a room.
	RoomEndedEvtMsg = "BreakoutRoomEndedEvtMsg"
)

// ErrInvalidCredentials is returned when any credential field is empty.
var ErrInvalidCredentials = errors.New("meetingId, requesterUserId and requesterToken are required")

// Credentials identify the requesting user.
type Credentials struct {
	MeetingID       string
	RequesterUserID string
	RequesterToken  string
}

func (c Credentials) validate() error {
	if c.MeetingID == "" || c.RequesterUserID == "" || c.RequesterToken == "" {
		return ErrInvalidCredentials
	}
	return nil
}

// Publisher is the subset of *nats.Conn used to reach the backend.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Routing, Header and Envelope frame every message exchanged with the backend.
type Routing struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type Header struct {
	Name      string `json:"name"`
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type Envelope struct {
	Envelope struct {
		Name      string  `json:"name"`
		Routing   Routing `json:"routing"`
		Timestamp int64   `json:"timestamp"`
	} `json:"envelope"`
	Core struct {
		Header Header          `json:"header"`
		Body   json.RawMessage `json:"body"`
	} `json:"core"`
}

// JoinURLRequest is the body of RequestBreakoutJoinURLReqMsg.
type JoinURLRequest struct {
	MeetingID  string `json:"meetingId"`
	BreakoutID string `json:"breakoutId"`
	UserID     string `json:"userId"`
}

// RoomEndedEvent is the body of BreakoutRoomEndedEvtMsg.
type RoomEndedEvent struct {
	ParentID   string `json:"parentId"`
	BreakoutID string `json:"breakoutId"`
}

// JoinURLEvent is the body of BreakoutRoomJoinURLEvtMsg.
type JoinURLEvent struct {
	ParentID               string `json:"parentId"`
	BreakoutID             string `json:"breakoutId"`
	UserID                 string `json:"userId"`
	RedirectToHTML5JoinURL string `json:"redirectToHtml5JoinURL"`
}

// Requester resolves join URLs.
type Requester struct {
	dir     *Directory
	pub     Publisher
	subject string
	clock   clockwork.Clock
}

// NewRequester publishes requests on subject (the channel to the backend).
func NewRequester(dir *Directory, pub Publisher, subject string, clock clockwork.Clock) *Requester {
	return &Requester{dir: dir, pub: pub, subject: subject, clock: clock}
}

// RequestJoinURL returns the cached join URL for userID (the requester when
// empty). When none is cached a request is published and "" is returned; the
// URL arrives later through HandleEvent.
func (r *Requester) RequestJoinURL(ctx context.Context, creds Credentials, breakoutID, userID string) (string, error) {
	if err := creds.validate(); err != nil {
		return "", err
	}
	if userID == "" {
		userID = creds.RequesterUserID
	}

	if url, _ := r.dir.Lookup(breakoutID, userID); url != "" {
		return url, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := r.envelope(RequestJoinURLMsg, creds.MeetingID, creds.RequesterUserID, JoinURLRequest{
		MeetingID:  creds.MeetingID,
		BreakoutID: breakoutID,
		UserID:     userID,
	})
	if err != nil {
		return "", err
	}
	if err := r.pub.Publish(r.subject, data); err != nil {
		return "", fmt.Errorf("publish %s: %w", RequestJoinURLMsg, err)
	}

	log.Info().
		Str("meeting_id", creds.MeetingID).
		Str("breakout_id", breakoutID).
		Str("user_id", userID).
		Msg("breakout join URL requested")
	return "", nil
}

// HandleEvent updates the directory from a backend message: issued join URLs
// are cached and ended rooms are forgotten. Other message names are ignored.
func (r *Requester) HandleEvent(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Core.Header.Name {
	case JoinURLEvtMsg:
		var evt JoinURLEvent
		if err := json.Unmarshal(env.Core.Body, &evt); err != nil {
			return fmt.Errorf("unmarshal %s body: %w", JoinURLEvtMsg, err)
		}
		r.dir.SetJoinURL(evt.BreakoutID, evt.UserID, evt.RedirectToHTML5JoinURL)
		log.Debug().
			Str("breakout_id", evt.BreakoutID).
			Str("user_id", evt.UserID).
			Msg("breakout join URL cached")

	case RoomEndedEvtMsg:
		var evt RoomEndedEvent
		if err := json.Unmarshal(env.Core.Body, &evt); err != nil {
			return fmt.Errorf("unmarshal %s body: %w", RoomEndedEvtMsg, err)
		}
		r.dir.Remove(evt.BreakoutID)
		log.Debug().Str("breakout_id", evt.BreakoutID).Msg("breakout room ended")
	}
	return nil
}

// Subscribe feeds HandleEvent from subject.
func (r *Requester) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := r.HandleEvent(msg.Data); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("ignoring malformed breakout message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

func (r *Requester) envelope(name, meetingID, userID string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", name, err)
	}
	var env Envelope
	env.Envelope.Name = name
	env.Envelope.Routing = Routing{MeetingID: meetingID, UserID: userID}
	env.Envelope.Timestamp = r.clock.Now().UnixMilli()
	env.Core.Header = Header{Name: name, MeetingID: meetingID, UserID: userID}
	env.Core.Body = raw

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", name, err)
	}
	return data, nil
}
