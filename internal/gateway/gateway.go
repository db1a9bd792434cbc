// Package gateway is the WebSocket edge: it authenticates connections,
// tracks per-auction rooms, dispatches client operations into the engine
// and fans domain events out to room subscribers.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/auth"
	"github.com/gavelio/gavel/internal/bidding"
	"github.com/gavelio/gavel/internal/engine"
	"github.com/gavelio/gavel/internal/league"
)

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns sensible defaults for development.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Gateway upgrades HTTP requests to WebSocket sessions and routes client
// operations to the engine and league apps.
type Gateway struct {
	engine   *engine.Engine
	leagues  *league.App
	verifier *auth.Verifier
	manager  *Manager
	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock
}

func New(eng *engine.Engine, leagues *league.App, verifier *auth.Verifier, clock clockwork.Clock, config ConnectionConfig) *Gateway {
	return &Gateway{
		engine:   eng,
		leagues:  leagues,
		verifier: verifier,
		manager:  NewManager(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		clock:  clock,
	}
}

// Manager exposes room membership for the event consumer.
func (g *Gateway) Manager() *Manager {
	return g.manager
}

func (g *Gateway) now() time.Time {
	return g.clock.Now()
}

// HandleWS authenticates and upgrades a connection. Unauthenticated
// requests are rejected before the upgrade handshake.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := g.verifier.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(g, userID, conn)
	log.Info().
		Str("session_id", s.ID).
		Str("user_id", userID.String()).
		Msg("websocket session established")

	go s.writePump()
	go s.readPump()
}

// bearerToken extracts the JWT from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query param.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// disconnect removes the session from all rooms and tells each room the
// user left.
func (g *Gateway) disconnect(s *Session) {
	left := g.manager.dropSession(s)
	for _, auctionID := range left {
		g.broadcastRoom(auctionID, MsgUserLeft, PresencePayload{UserID: s.UserID}, s)
	}
	log.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID.String()).
		Int("rooms_left", len(left)).
		Msg("websocket session closed")
}

func (g *Gateway) joinAuction(ctx context.Context, s *Session, msg ClientMessage) OpResult {
	auctionID, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		return resultErr(OpJoinAuction, "invalid_auction_id", false)
	}

	// Membership is re-checked on every join, never cached per session.
	ok, err := g.leagues.IsMember(ctx, auctionID, s.UserID)
	if err != nil {
		log.Error().Err(err).Str("auction_id", msg.AuctionID).Msg("membership check failed")
		return resultErr(OpJoinAuction, "internal_error", true)
	}
	if !ok {
		return resultErr(OpJoinAuction, "not_a_member", false)
	}

	g.manager.join(auctionID, s)

	var snapshot *engine.StateSnapshot
	snapshot, err = g.engine.State(ctx, auctionID)
	if err != nil && !errors.Is(err, engine.ErrAuctionNotFound) {
		log.Error().Err(err).Str("auction_id", msg.AuctionID).Msg("state snapshot failed on join")
	}

	g.broadcastRoom(auctionID, MsgUserJoined, PresencePayload{UserID: s.UserID}, s)
	return resultOK(OpJoinAuction, snapshot)
}

func (g *Gateway) leaveAuction(_ context.Context, s *Session, msg ClientMessage) OpResult {
	auctionID, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		return resultErr(OpLeaveAuction, "invalid_auction_id", false)
	}
	if !g.manager.leave(auctionID, s) {
		return resultErr(OpLeaveAuction, "not_in_room", false)
	}
	g.broadcastRoom(auctionID, MsgUserLeft, PresencePayload{UserID: s.UserID}, s)
	return resultOK(OpLeaveAuction, nil)
}

func (g *Gateway) placeBid(ctx context.Context, s *Session, msg ClientMessage) OpResult {
	auctionID, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		return resultErr(OpPlaceBid, "invalid_auction_id", false)
	}
	result, err := g.engine.PlaceBid(ctx, bidding.PlaceBidRequest{
		LeagueID:    auctionID,
		UserID:      s.UserID,
		Amount:      msg.Amount,
		OperationID: msg.OperationID,
	})
	if err != nil {
		code, retryable := bidding.ReasonCode(err)
		if code == "internal_error" {
			log.Error().Err(err).
				Str("auction_id", msg.AuctionID).
				Str("operation_id", msg.OperationID).
				Msg("bid placement failed")
		}
		return resultErr(OpPlaceBid, code, retryable)
	}
	return resultOK(OpPlaceBid, result)
}

func (g *Gateway) sendChat(_ context.Context, s *Session, msg ClientMessage) OpResult {
	auctionID, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		return resultErr(OpSendChatMessage, "invalid_auction_id", false)
	}
	if !g.manager.inRoom(auctionID, s) {
		return resultErr(OpSendChatMessage, "not_in_room", false)
	}

	text := strings.TrimSpace(msg.Message)
	if text == "" {
		return resultErr(OpSendChatMessage, "empty_message", false)
	}
	if utf8.RuneCountInString(text) > ChatMaxLen {
		text = string([]rune(text)[:ChatMaxLen])
	}

	// Chat goes to the whole room, sender included.
	g.broadcastRoom(auctionID, MsgChatMessage, ChatPayload{
		UserID:  s.UserID,
		Message: text,
		SentAt:  g.now(),
	}, nil)
	return resultOK(OpSendChatMessage, nil)
}

func (g *Gateway) auctionState(ctx context.Context, s *Session, msg ClientMessage) OpResult {
	auctionID, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		return resultErr(OpGetAuctionState, "invalid_auction_id", false)
	}
	snapshot, err := g.engine.State(ctx, auctionID)
	if err != nil {
		if errors.Is(err, engine.ErrAuctionNotFound) {
			return resultErr(OpGetAuctionState, "auction_not_found", false)
		}
		log.Error().Err(err).Str("auction_id", msg.AuctionID).Msg("state snapshot failed")
		return resultErr(OpGetAuctionState, "internal_error", true)
	}
	return resultOK(OpGetAuctionState, snapshot)
}

// broadcastRoom wraps payload in a RoomMessage and fans it out.
func (g *Gateway) broadcastRoom(auctionID uuid.UUID, msgType string, payload any, except *Session) {
	data, err := marshalRoomMessage(auctionID, msgType, payload, g.now())
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to marshal room message")
		return
	}
	g.manager.Broadcast(auctionID, data, except)
}
