package ws

import (
	"codepair/internal/collab"
	"codepair/internal/model"
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Editor events, sent by clients and relayed to the rest of the room
const (
	MsgJoinRoom       MessageType = "join-room"
	MsgCodeChange     MessageType = "code-change"
	MsgLanguageChange MessageType = "language-change"
	MsgOutputUpdate   MessageType = "output-update"
)

// Server events
const (
	MsgSyncState      MessageType = "sync-state"
	MsgProblemChanged MessageType = "problem-changed"
	MsgRoomClosed     MessageType = "room-closed"
	MsgError          MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newMessage(t MessageType, payload interface{}) *Message {
	data, _ := json.Marshal(payload)
	return &Message{Type: t, Payload: data}
}

// Connection represents a WebSocket connection
type Connection struct {
	ID     string
	RoomID string
	UserID string
	Role   model.Role
	Send   chan []byte

	room *room
}

// delivery is one event queued on a room. build runs on the room's
// goroutine, applies any cache update and returns the message to fan out.
type delivery struct {
	from       *Connection // nil for server events
	exceptUser string      // skip every connection of this user
	replyOnly  bool        // send only to from
	build      func(*collab.Store) *Message
}

// Hub manages WebSocket connections for rooms. Each room runs its own
// goroutine, so events of one room are handled in arrival order and never
// wait on another room.
type Hub struct {
	store *collab.Store

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

// NewHub creates a new WebSocket hub backed by store
func NewHub(store *collab.Store) *Hub {
	return &Hub{
		store: store,
		rooms: make(map[string]*room),
	}
}

type room struct {
	id    string
	hub   *Hub
	conns map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection
	inbound    chan delivery

	stop        chan struct{}
	stopOnce    sync.Once
	closeReason string
}

func (h *Hub) roomFor(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.store.Closed(roomID) {
		return nil
	}
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{
			id:         roomID,
			hub:        h,
			conns:      make(map[*Connection]struct{}),
			register:   make(chan *Connection),
			unregister: make(chan *Connection),
			inbound:    make(chan delivery),
			stop:       make(chan struct{}),
		}
		h.rooms[roomID] = r
		go r.run()
	}
	return r
}

func (h *Hub) lookup(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

// forget drops r from the registry if it is still the current room for its id.
func (h *Hub) forget(r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
}

// Join attaches conn to its room. It returns false once the hub is shut down
// or the room has been evicted.
func (h *Hub) Join(conn *Connection) bool {
	for {
		r := h.roomFor(conn.RoomID)
		if r == nil {
			return false
		}
		select {
		case r.register <- conn:
			conn.room = r
			return true
		case <-r.stop:
			// The room went idle while we were joining; take a fresh one.
		}
	}
}

// Leave detaches conn and closes its send channel.
func (h *Hub) Leave(conn *Connection) {
	if conn.room == nil {
		return
	}
	select {
	case conn.room.unregister <- conn:
	case <-conn.room.stop:
	}
}

// dispatch queues d on the room, or applies it to the cache directly when
// nobody is connected. Events for evicted rooms are dropped.
func (h *Hub) dispatch(roomID string, d delivery) {
	if r := h.lookup(roomID); r != nil && r.enqueue(d) {
		return
	}
	if h.store.Closed(roomID) {
		log.Printf("[Hub] dropping event for closed room %s", roomID)
		return
	}
	d.build(h.store)
}

func (r *room) enqueue(d delivery) bool {
	select {
	case r.inbound <- d:
		return true
	case <-r.stop:
		return false
	}
}

func (r *room) shutdown(reason string) {
	r.stopOnce.Do(func() {
		r.closeReason = reason
		close(r.stop)
	})
}

func (r *room) run() {
	for {
		select {
		case conn := <-r.register:
			r.conns[conn] = struct{}{}
			log.Printf("[Room %s] %s connected as %s (%d online)", r.id, conn.UserID, conn.Role, len(r.conns))
			if st, ok := r.hub.store.Snapshot(r.id); ok {
				r.send(conn, newMessage(MsgSyncState, st))
			}

		case conn := <-r.unregister:
			if _, ok := r.conns[conn]; ok {
				delete(r.conns, conn)
				close(conn.Send)
				log.Printf("[Room %s] %s disconnected (%d online)", r.id, conn.UserID, len(r.conns))
			}
			if len(r.conns) == 0 {
				r.hub.forget(r)
				r.shutdown("")
				return
			}

		case d := <-r.inbound:
			r.deliver(d)

		case <-r.stop:
			r.closeAll()
			return
		}
	}
}

func (r *room) deliver(d delivery) {
	msg := d.build(r.hub.store)
	if msg == nil {
		return
	}

	if d.replyOnly {
		if _, ok := r.conns[d.from]; ok {
			r.send(d.from, msg)
		}
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Room %s] ERROR: encode %s: %v", r.id, msg.Type, err)
		return
	}
	for conn := range r.conns {
		if conn == d.from || (d.exceptUser != "" && conn.UserID == d.exceptUser) {
			continue
		}
		r.sendRaw(conn, data)
	}
}

func (r *room) closeAll() {
	data, _ := json.Marshal(newMessage(MsgRoomClosed, map[string]string{"reason": r.closeReason}))
	for conn := range r.conns {
		r.sendRaw(conn, data)
		close(conn.Send)
		delete(r.conns, conn)
	}
	log.Printf("[Room %s] closed: %s", r.id, r.closeReason)
}

func (r *room) send(conn *Connection, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	r.sendRaw(conn, data)
}

func (r *room) sendRaw(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Drop message if buffer full
		log.Printf("[Room %s] WARNING: dropping message for slow connection %s", r.id, conn.ID)
	}
}

// Evict closes a room: cached state is dropped and every client receives
// room-closed before being disconnected.
func (h *Hub) Evict(roomID, reason string) {
	h.mu.Lock()
	r := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.store.Evict(roomID)
	h.mu.Unlock()

	if r != nil {
		r.shutdown(reason)
	}
}

// Shutdown closes every room and refuses new connections.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.shutdown("server shutting down")
	}
}

// Snapshot implements service.Broadcaster
func (h *Hub) Snapshot(roomID string) (model.RoomState, bool) {
	return h.store.Snapshot(roomID)
}

// RoomCount returns the number of rooms with live connections.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// PublishCode implements service.Broadcaster
func (h *Hub) PublishCode(roomID, exceptUserID string, change model.CodeChange) {
	h.dispatch(roomID, delivery{exceptUser: exceptUserID, build: func(s *collab.Store) *Message {
		s.MergeCode(roomID, change)
		return newMessage(MsgCodeChange, change)
	}})
}

// PublishOutput implements service.Broadcaster
func (h *Hub) PublishOutput(roomID, exceptUserID string, output *model.RunOutput) {
	h.dispatch(roomID, delivery{exceptUser: exceptUserID, build: func(s *collab.Store) *Message {
		s.MergeOutput(roomID, output)
		return newMessage(MsgOutputUpdate, model.OutputUpdate{Output: output})
	}})
}

// PublishProblem implements service.Broadcaster
func (h *Hub) PublishProblem(roomID, exceptUserID string, problem model.ProblemChanged) {
	h.dispatch(roomID, delivery{exceptUser: exceptUserID, build: func(*collab.Store) *Message {
		return newMessage(MsgProblemChanged, problem)
	}})
}

// ResetEditor implements service.Broadcaster
func (h *Hub) ResetEditor(roomID string) {
	h.dispatch(roomID, delivery{build: func(s *collab.Store) *Message {
		return newMessage(MsgSyncState, s.ResetEditor(roomID))
	}})
}

// CloseRoom implements service.Broadcaster
func (h *Hub) CloseRoom(roomID string) {
	h.Evict(roomID, "session ended")
}
