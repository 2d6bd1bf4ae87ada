package ws

import (
	"codepair/internal/apperr"
	"codepair/internal/collab"
	"codepair/internal/model"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// MembershipChecker reports the role a user holds in the session behind a room.
type MembershipChecker interface {
	Membership(ctx context.Context, roomID, userID string) (*model.Session, model.Role, error)
}

// Handler handles WebSocket connections
type Handler struct {
	hub      *Hub
	auth     Authenticator
	sessions MembershipChecker
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. allowedOrigins is the CORS
// origin list; "*" accepts any origin.
func NewHandler(hub *Hub, auth Authenticator, sessions MembershipChecker, allowedOrigins string) *Handler {
	return &Handler{
		hub:      hub,
		auth:     auth,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	origins := map[string]bool{}
	for _, o := range strings.Split(allowed, ",") {
		origins[strings.TrimSpace(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins[origin]
	}
}

// RoomWS handles GET /v1/ws/rooms/{roomId}
//
// The token comes from the query string since browsers cannot set headers
// on WebSocket requests. The caller's role is taken from the session, never
// from the client.
func (h *Handler) RoomWS(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
		return
	}

	_, role, err := h.sessions.Membership(r.Context(), roomID, user.ID)
	if err != nil {
		http.Error(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		ID:     uuid.NewString(),
		RoomID: roomID,
		UserID: user.ID,
		Role:   role,
		Send:   make(chan []byte, sendBuffer),
	}
	if !h.hub.Join(conn) {
		wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "room unavailable"),
			time.Now().Add(writeWait))
		wsConn.Close()
		return
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Leave(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		if !conn.room.enqueue(inboundDelivery(conn, data)) {
			break
		}
	}
}

// inboundDelivery turns a client frame into a room delivery. Malformed
// frames produce an error reply to the sender only.
func inboundDelivery(conn *Connection, data []byte) delivery {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply(conn, "invalid message")
	}

	roomID := conn.RoomID
	switch msg.Type {
	case MsgJoinRoom:
		return delivery{from: conn, replyOnly: true, build: func(s *collab.Store) *Message {
			st, ok := s.Snapshot(roomID)
			if !ok {
				return nil
			}
			return newMessage(MsgSyncState, st)
		}}

	case MsgCodeChange, MsgLanguageChange:
		var change model.CodeChange
		if err := json.Unmarshal(msg.Payload, &change); err != nil {
			return errorReply(conn, "invalid "+string(msg.Type)+" payload")
		}
		return delivery{from: conn, build: func(s *collab.Store) *Message {
			s.MergeCode(roomID, change)
			return newMessage(msg.Type, change)
		}}

	case MsgOutputUpdate:
		var update model.OutputUpdate
		if err := json.Unmarshal(msg.Payload, &update); err != nil {
			return errorReply(conn, "invalid output-update payload")
		}
		return delivery{from: conn, build: func(s *collab.Store) *Message {
			s.MergeOutput(roomID, update.Output)
			return newMessage(MsgOutputUpdate, update)
		}}
	}

	return errorReply(conn, "unsupported message type: "+string(msg.Type))
}

func errorReply(conn *Connection, reason string) delivery {
	return delivery{from: conn, replyOnly: true, build: func(*collab.Store) *Message {
		return newMessage(MsgError, map[string]string{"message": reason})
	}}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
