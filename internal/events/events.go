// Package events defines the domain events broadcast to auction rooms and
// the bus they travel over.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gavelio/gavel/internal/models"
)

// EventType identifies the kind of auction event.
type EventType string

const (
	EventTypeAuctionStarted   EventType = "auction_started"
	EventTypeLotOpened        EventType = "lot_opened"
	EventTypeBidResult        EventType = "bid_result"
	EventTypeLotStatus        EventType = "lot_status"
	EventTypeLotClosed        EventType = "lot_closed"
	EventTypeAuctionCompleted EventType = "auction_completed"
	EventTypeTimeSync         EventType = "time_sync"
)

// Event is the envelope every auction event travels in.
type Event struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New wraps payload into an Event envelope.
func New(auctionID uuid.UUID, typ EventType, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		AuctionID: auctionID.String(),
		Type:      typ,
		Timestamp: at,
		Data:      data,
	}, nil
}

// AuctionStartedPayload announces a live auction run.
type AuctionStartedPayload struct {
	AuctionID       string      `json:"auction_id"`
	NominationOrder []uuid.UUID `json:"nomination_order"`
	LotCount        int         `json:"lot_count"`
	StartedAt       time.Time   `json:"started_at"`
}

// LotOpenedPayload announces the next lot on the block.
type LotOpenedPayload struct {
	LotID       string    `json:"lot_id"`
	ClubID      string    `json:"club_id"`
	OrderIndex  int       `json:"order_index"`
	TimerEndsAt time.Time `json:"timer_ends_at"`
	BidTimerSec int       `json:"bid_timer_sec"`
}

// BidResultPayload carries one accepted bid to the room.
type BidResultPayload struct {
	LotID       string     `json:"lot_id"`
	BidID       string     `json:"bid_id"`
	BidderID    string     `json:"bidder_id"`
	Amount      int64      `json:"amount"`
	TimerEndsAt *time.Time `json:"timer_ends_at,omitempty"`
	Extended    bool       `json:"extended"` // anti-snipe extension applied
}

// LotClosedPayload reports a settled lot (sold or passed).
type LotClosedPayload struct {
	LotID      string           `json:"lot_id"`
	ClubID     string           `json:"club_id"`
	Status     models.LotStatus `json:"status"`
	FinalPrice *int64           `json:"final_price,omitempty"`
	WinnerID   *uuid.UUID       `json:"winner_id,omitempty"`
}

// LotStatusPayload carries the advisory countdown transitions
// (going_once / going_twice).
type LotStatusPayload struct {
	LotID  string           `json:"lot_id"`
	Status models.LotStatus `json:"status"`
}

// AuctionCompletedPayload announces the end of the run.
type AuctionCompletedPayload struct {
	AuctionID   string    `json:"auction_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// TimeSyncPayload is the authoritative server clock pushed to clients so
// countdowns render against server time rather than the local clock.
type TimeSyncPayload struct {
	ServerTime  time.Time        `json:"server_time"`
	LotID       *uuid.UUID       `json:"lot_id,omitempty"`
	LotStatus   models.LotStatus `json:"lot_status,omitempty"`
	TimerEndsAt *time.Time       `json:"timer_ends_at,omitempty"`
	SecondsLeft float64          `json:"seconds_remaining"`
}
