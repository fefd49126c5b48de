// Package relay is the standalone room-based chat relay.
//
// Clients exchange JSON frames {"event": ..., "data": ...} over a websocket:
//
//	join        {"userId": "u1"}                 marks the user online
//	joinRoom    "u1-u2" or {"roomId": "u1-u2"}  subscribes the socket to a room
//	sendMessage {"senderId","receiverId","message"}
//
// sendMessage is stamped with the server time and delivered as receiveMessage
// to every socket joined to RoomID(senderId, receiverId), the sender included
// when it joined. Nothing is stored or acknowledged: a peer that is not in the
// room when a message goes out never sees it.
package relay

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event names on the wire.
const (
	EventJoin           = "join"
	EventJoinRoom       = "joinRoom"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
)

const (
	writeWait      = 10 * time.Second
	maxFrameBytes  = 16 << 10
	defaultMaxText = 4000
)

var (
	framesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sahulat",
		Subsystem: "relay",
		Name:      "frames_total",
		Help:      "Client frames received by event.",
	}, []string{"event"})

	deliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sahulat",
		Subsystem: "relay",
		Name:      "deliveries_total",
		Help:      "receiveMessage frames written to sockets.",
	})

	connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sahulat",
		Subsystem: "relay",
		Name:      "connections",
		Help:      "Open relay websocket connections.",
	})
)

func init() {
	prometheus.MustRegister(framesTotal, deliveredTotal, connections)
}

// Frame is one websocket message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is the sendMessage payload. Timestamp is set by the relay in
// milliseconds since the epoch.
type Message struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// RoomID is the room shared by two users: their IDs sorted and joined by "-".
func RoomID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

// client is one socket. Writes are serialized by mu; gorilla allows a single
// concurrent writer per connection.
type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	userID string
	rooms  map[string]struct{}
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks sockets, rooms and online users.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	users map[string]*client

	upgrader websocket.Upgrader
	now      func() time.Time
	maxText  int
	log      zerolog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l zerolog.Logger) Option { return func(h *Hub) { h.log = l } }

// WithMaxMessage caps message text length in characters.
func WithMaxMessage(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxText = n
		}
	}
}

// NewHub returns an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:   make(map[string]map[*client]struct{}),
		users:   make(map[string]*client),
		now:     time.Now,
		maxText: defaultMaxText,
		log:     log.With().Str("component", "relay").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request and runs the socket's read loop until the
// peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	c := &client{conn: conn, rooms: make(map[string]struct{})}
	connections.Inc()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("socket connected")

	defer func() {
		h.drop(c)
		_ = conn.Close()
		connections.Dec()
		h.log.Debug().Str("user_id", c.userID).Msg("socket disconnected")
	}()

	conn.SetReadLimit(maxFrameBytes)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if json.Unmarshal(raw, &f) != nil {
			framesTotal.WithLabelValues("malformed").Inc()
			continue
		}
		h.dispatch(c, f)
	}
}

func (h *Hub) dispatch(c *client, f Frame) {
	switch f.Event {
	case EventJoin:
		var p struct {
			UserID string `json:"userId"`
		}
		if json.Unmarshal(f.Data, &p) != nil || strings.TrimSpace(p.UserID) == "" {
			return
		}
		h.join(c, strings.TrimSpace(p.UserID))
	case EventJoinRoom:
		room := roomOf(f.Data)
		if room == "" {
			return
		}
		h.joinRoom(c, room)
	case EventSendMessage:
		var m Message
		if json.Unmarshal(f.Data, &m) != nil || m.SenderID == "" || m.ReceiverID == "" {
			return
		}
		if utf8.RuneCountInString(m.Message) > h.maxText {
			return
		}
		m.Timestamp = h.now().UnixMilli()
		h.Broadcast(m)
	default:
		framesTotal.WithLabelValues("unknown").Inc()
		return
	}
	framesTotal.WithLabelValues(f.Event).Inc()
}

// roomOf accepts either a bare JSON string or {"roomId": ...}.
func roomOf(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var p struct {
		RoomID string `json:"roomId"`
	}
	if json.Unmarshal(raw, &p) == nil {
		return strings.TrimSpace(p.RoomID)
	}
	return ""
}

func (h *Hub) join(c *client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.userID != "" && c.userID != userID && h.users[c.userID] == c {
		delete(h.users, c.userID)
	}
	c.userID = userID
	h.users[userID] = c
}

func (h *Hub) joinRoom(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, found := h.rooms[room]
	if !found {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// drop removes c from every room and from the online set. Empty rooms are
// deleted.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		if members, found := h.rooms[room]; found {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	if c.userID != "" && h.users[c.userID] == c {
		delete(h.users, c.userID)
	}
}

// Broadcast delivers m as receiveMessage to every socket in its room and
// returns how many sockets it was written to. Write failures are skipped;
// the failing socket's read loop cleans it up.
func (h *Hub) Broadcast(m Message) int {
	data, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	payload, err := json.Marshal(Frame{Event: EventReceiveMessage, Data: data})
	if err != nil {
		return 0
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[RoomID(m.SenderID, m.ReceiverID)]))
	for c := range h.rooms[RoomID(m.SenderID, m.ReceiverID)] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.write(payload); err != nil {
			h.log.Debug().Err(err).Msg("delivery failed")
			continue
		}
		sent++
	}
	deliveredTotal.Add(float64(sent))
	return sent
}

// Members reports how many sockets are joined to room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Online reports whether userID has announced itself with join on an open
// socket.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, found := h.users[userID]
	return found
}

// Stats is a snapshot of hub occupancy.
type Stats struct {
	Rooms int `json:"rooms"`
	Users int `json:"users"`
}

// Stats returns the current occupancy.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Rooms: len(h.rooms), Users: len(h.users)}
}
