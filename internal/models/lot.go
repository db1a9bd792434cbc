package models

import (
	"time"

	"github.com/google/uuid"
)

// LotStatus defines the lifecycle state of a lot. Transitions are
// one-directional: a lot never reopens after SOLD or PASSED.
type LotStatus string

const (
	LotStatusPending    LotStatus = "PENDING"
	LotStatusOpen       LotStatus = "OPEN"
	LotStatusGoingOnce  LotStatus = "GOING_ONCE"
	LotStatusGoingTwice LotStatus = "GOING_TWICE"
	LotStatusSold       LotStatus = "SOLD"
	LotStatusPassed     LotStatus = "PASSED"
)

// BiddableStatuses are the statuses in which a lot accepts bids.
var BiddableStatuses = []LotStatus{LotStatusOpen, LotStatusGoingOnce, LotStatusGoingTwice}

// Biddable reports whether s accepts bids.
func (s LotStatus) Biddable() bool {
	return s == LotStatusOpen || s == LotStatusGoingOnce || s == LotStatusGoingTwice
}

// Terminal reports whether s is a terminal status.
func (s LotStatus) Terminal() bool {
	return s == LotStatusSold || s == LotStatusPassed
}

// Lot is one club up for bid within a single auction run.
type Lot struct {
	ID             uuid.UUID  `json:"id"`
	AuctionID      uuid.UUID  `json:"auction_id"`
	ClubID         uuid.UUID  `json:"club_id"`
	OrderIndex     int        `json:"order_index"`
	Status         LotStatus  `json:"status"`
	CurrentBid     int64      `json:"current_bid"`
	LeadingBidder  *uuid.UUID `json:"leading_bidder,omitempty"`
	TimerEndsAt    *time.Time `json:"timer_ends_at,omitempty"`
	FinalPrice     *int64     `json:"final_price,omitempty"`
	LastBidAt      *time.Time `json:"last_bid_at,omitempty"`
}
