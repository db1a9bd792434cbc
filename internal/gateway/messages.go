package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client operation types.
const (
	OpJoinAuction     = "join_auction"
	OpLeaveAuction    = "leave_auction"
	OpPlaceBid        = "place_bid"
	OpSendChatMessage = "send_chat_message"
	OpGetAuctionState = "get_auction_state"
	OpPing            = "ping"
)

// Gateway-local server message types. Domain events (bid_result, time_sync,
// lot_opened, ...) arrive through the event consumer and keep their own
// envelope.
const (
	MsgOpResult    = "op_result"
	MsgUserJoined  = "user_joined"
	MsgUserLeft    = "user_left"
	MsgChatMessage = "chat_message"
)

// ChatMaxLen caps chat message length in runes.
const ChatMaxLen = 500

// ClientMessage is the envelope for every operation a client sends.
type ClientMessage struct {
	Type        string `json:"type"`
	AuctionID   string `json:"auction_id,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// OpResult is the structured outcome returned to the calling client for
// every operation. Operations never throw across the wire.
type OpResult struct {
	Type      string `json:"type"` // always "op_result"
	Op        string `json:"op"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Data      any    `json:"data,omitempty"`
}

func resultOK(op string, data any) OpResult {
	return OpResult{Type: MsgOpResult, Op: op, Success: true, Data: data}
}

func resultErr(op, reason string, retryable bool) OpResult {
	return OpResult{Type: MsgOpResult, Op: op, Success: false, Error: reason, Retryable: retryable}
}

// RoomMessage is the envelope for gateway-originated room broadcasts
// (presence and chat).
type RoomMessage struct {
	Type      string    `json:"type"`
	AuctionID string    `json:"auction_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

func marshalRoomMessage(auctionID uuid.UUID, msgType string, payload any, at time.Time) ([]byte, error) {
	return json.Marshal(RoomMessage{
		Type:      msgType,
		AuctionID: auctionID.String(),
		Timestamp: at,
		Data:      payload,
	})
}

// PresencePayload identifies the user behind a join/leave notification.
type PresencePayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// ChatPayload is a chat message relayed to the room.
type ChatPayload struct {
	UserID  uuid.UUID `json:"user_id"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}
