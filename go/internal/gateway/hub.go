package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// HubConfig tunes viewer sockets and the broadcast queues.
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	TickQueue       int
	EventQueue      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns the defaults used by the gateway.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
		TickQueue:       256,
		EventQueue:      64,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// Viewer is one WebSocket client watching a meeting's countdown.
type Viewer struct {
	ID          string
	UserID      string
	MeetingID   string
	ConnectedAt time.Time

	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once
}

type outbound struct {
	meetingID string
	event     *Event
}

// Hub fans countdown events out to the viewers of each meeting.
//
// Ticks and the other events travel on separate queues. A tick carries the
// absolute remaining time, so a tick that does not fit a queue or a viewer's
// buffer is skipped. Alerts, expiry and state events are drained first, and a
// viewer too slow to take one is disconnected.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	viewers map[string]map[*Viewer]struct{}

	ticks  chan outbound
	events chan outbound
}

// NewHub creates a hub. Call Start to begin delivering.
func NewHub(config HubConfig) *Hub {
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		viewers: make(map[string]map[*Viewer]struct{}),
		ticks:   make(chan outbound, config.TickQueue),
		events:  make(chan outbound, config.EventQueue),
	}
}

// Start delivers queued events until ctx is cancelled, then disconnects
// every viewer.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("viewer hub started")
	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			log.Info().Msg("viewer hub stopped")
			return
		case out := <-h.events:
			h.deliver(out)
			continue
		default:
		}

		select {
		case <-ctx.Done():
		case out := <-h.events:
			h.deliver(out)
		case out := <-h.ticks:
			h.deliver(out)
		}
	}
}

// Attach upgrades the request and registers the viewer under meetingID.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request, userID, meetingID string) (*Viewer, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	v := &Viewer{
		ID:          uuid.New().String(),
		UserID:      userID,
		MeetingID:   meetingID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
	}

	h.mu.Lock()
	audience := h.viewers[meetingID]
	if audience == nil {
		audience = make(map[*Viewer]struct{})
		h.viewers[meetingID] = audience
	}
	audience[v] = struct{}{}
	watching := len(audience)
	h.mu.Unlock()

	go v.writeLoop()
	go v.readLoop()

	log.Info().
		Str("viewer_id", v.ID).
		Str("user_id", userID).
		Str("meeting_id", meetingID).
		Int("watching", watching).
		Msg("viewer attached")
	return v, nil
}

// detach removes v and closes its send buffer. Safe to call more than once.
func (h *Hub) detach(v *Viewer) {
	h.mu.Lock()
	audience := h.viewers[v.MeetingID]
	_, ok := audience[v]
	if ok {
		delete(audience, v)
		close(v.send)
		if len(audience) == 0 {
			delete(h.viewers, v.MeetingID)
		}
	}
	h.mu.Unlock()

	if ok {
		log.Info().
			Str("viewer_id", v.ID).
			Str("meeting_id", v.MeetingID).
			Msg("viewer detached")
	}
}

// BroadcastToMeeting queues event for every viewer of meetingID. It never
// blocks; an event that does not fit its queue is dropped and logged.
func (h *Hub) BroadcastToMeeting(meetingID string, event *Event) {
	q := h.events
	if event.Type == EventTypeTimerTick {
		q = h.ticks
	}
	select {
	case q <- outbound{meetingID: meetingID, event: event}:
	default:
		log.Warn().
			Str("meeting_id", meetingID).
			Str("event_type", string(event.Type)).
			Msg("broadcast queue full, dropping event")
	}
}

// SendTo queues event for one viewer only.
func (h *Hub) SendTo(v *Viewer, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.viewers[v.MeetingID][v]; !ok {
		return fmt.Errorf("viewer %s is detached", v.ID)
	}
	select {
	case v.send <- data:
		return nil
	default:
		return fmt.Errorf("viewer %s send buffer full", v.ID)
	}
}

func (h *Hub) deliver(out outbound) {
	data, err := json.Marshal(out.event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(out.event.Type)).Msg("failed to marshal event")
		return
	}
	droppable := out.event.Type == EventTypeTimerTick

	var slow []*Viewer
	skipped := 0
	h.mu.RLock()
	audience := h.viewers[out.meetingID]
	for v := range audience {
		select {
		case v.send <- data:
		default:
			if droppable {
				skipped++
			} else {
				slow = append(slow, v)
			}
		}
	}
	reached := len(audience)
	h.mu.RUnlock()

	for _, v := range slow {
		log.Warn().
			Str("viewer_id", v.ID).
			Str("event_type", string(out.event.Type)).
			Msg("viewer too slow for event, disconnecting")
		h.detach(v)
		v.close()
	}

	log.Debug().
		Str("meeting_id", out.meetingID).
		Str("event_type", string(out.event.Type)).
		Int("viewers", reached).
		Int("skipped", skipped).
		Msg("event delivered")
}

// GetConnectionStats counts attached viewers.
func (h *Hub) GetConnectionStats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := ConnectionStats{
		ActiveMeetings:     len(h.viewers),
		MeetingConnections: make(map[string]int, len(h.viewers)),
	}
	for meetingID, audience := range h.viewers {
		stats.TotalConnections += len(audience)
		stats.MeetingConnections[meetingID] = len(audience)
	}
	return stats
}

// ConnectionStats is the body of /ws/stats.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveMeetings     int            `json:"active_meetings"`
	MeetingConnections map[string]int `json:"meeting_connections"`
}

func (h *Hub) disconnectAll() {
	h.mu.RLock()
	var all []*Viewer
	for _, audience := range h.viewers {
		for v := range audience {
			all = append(all, v)
		}
	}
	h.mu.RUnlock()

	for _, v := range all {
		h.detach(v)
		v.close()
	}
}

func (v *Viewer) close() {
	v.closeOnce.Do(func() { v.conn.Close() })
}

func (v *Viewer) writeLoop() {
	cfg := v.hub.config
	ping := time.NewTicker(cfg.PingInterval)
	defer func() {
		ping.Stop()
		v.hub.detach(v)
		v.close()
	}()

	for {
		kind, payload := websocket.PingMessage, []byte(nil)
		select {
		case data, ok := <-v.send:
			if !ok {
				v.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind, payload = websocket.TextMessage, data
		case <-ping.C:
		}

		v.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		if err := v.conn.WriteMessage(kind, payload); err != nil {
			log.Debug().Err(err).Str("viewer_id", v.ID).Int("kind", kind).Msg("viewer write failed")
			return
		}
	}
}

// readLoop keeps the read deadline moving; viewers never send commands.
func (v *Viewer) readLoop() {
	cfg := v.hub.config
	defer func() {
		v.hub.detach(v)
		v.close()
	}()

	extend := func() { v.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)) }
	v.conn.SetReadLimit(cfg.MaxMessageSize)
	extend()
	v.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("viewer_id", v.ID).Msg("viewer closed unexpectedly")
			}
			return
		}
		extend()
	}
}
