package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// opTimeout bounds each client operation against the store. Bids are safe
// to retry with the same operation id after a timeout.
const opTimeout = 15 * time.Second

// Session is one authenticated WebSocket connection.
type Session struct {
	ID     string
	UserID uuid.UUID

	conn *websocket.Conn
	send chan []byte
	gw   *Gateway

	closeOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

func newSession(gw *Gateway, userID uuid.UUID, conn *websocket.Conn) *Session {
	now := gw.now()
	return &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		conn:        conn,
		send:        make(chan []byte, 256),
		gw:          gw,
		ConnectedAt: now,
		LastPing:    now,
	}
}

// enqueue offers data to the session's send buffer without blocking.
func (s *Session) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// sendJSON marshals v onto the send buffer; the session is evicted if the
// buffer is full.
func (s *Session) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to marshal outbound message")
		return
	}
	if !s.enqueue(data) {
		log.Warn().Str("session_id", s.ID).Msg("send buffer full on direct reply, evicting")
		s.evict()
	}
}

// evict closes the underlying connection; the read pump's deferred cleanup
// handles room membership and presence.
func (s *Session) evict() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.gw.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.evict()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.gw.config.WriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("session_id", s.ID).Msg("write failed, closing session")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.gw.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			s.LastPing = time.Now()
		}
	}
}

// readPump reads client operations until the connection drops, then cleans
// up room membership and notifies the rooms the session had joined.
func (s *Session) readPump() {
	defer func() {
		s.gw.disconnect(s)
		s.evict()
	}()

	s.conn.SetReadLimit(s.gw.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.gw.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.gw.config.ReadTimeout))
		s.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session_id", s.ID).Msg("unexpected close")
			}
			return
		}
		s.handleMessage(message)
		s.conn.SetReadDeadline(time.Now().Add(s.gw.config.ReadTimeout))
	}
}

// handleMessage dispatches one client operation and always answers with a
// structured OpResult; no internal error escapes to the wire unwrapped.
func (s *Session) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendJSON(resultErr("", "malformed_message", false))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var result OpResult
	switch msg.Type {
	case OpJoinAuction:
		result = s.gw.joinAuction(ctx, s, msg)
	case OpLeaveAuction:
		result = s.gw.leaveAuction(ctx, s, msg)
	case OpPlaceBid:
		result = s.gw.placeBid(ctx, s, msg)
	case OpSendChatMessage:
		result = s.gw.sendChat(ctx, s, msg)
	case OpGetAuctionState:
		result = s.gw.auctionState(ctx, s, msg)
	case OpPing:
		result = resultOK(OpPing, map[string]any{"server_time": s.gw.now()})
	default:
		result = resultErr(msg.Type, "unknown_operation", false)
	}
	s.sendJSON(result)
}
