package models

import (
	"time"

	"github.com/google/uuid"
)

// BidStatus defines whether a bid currently leads its lot.
type BidStatus string

const (
	BidStatusWinning BidStatus = "WINNING"
	BidStatusOutbid  BidStatus = "OUTBID"
)

// Bid is an immutable record of one accepted bid. The only permitted
// mutation is the WINNING -> OUTBID flip when a higher bid supersedes it.
type Bid struct {
	ID          uuid.UUID `json:"id"`
	LotID       uuid.UUID `json:"lot_id"`
	LeagueID    uuid.UUID `json:"league_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	Amount      int64     `json:"amount"`
	Status      BidStatus `json:"status"`
	OperationID string    `json:"operation_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// OperationLogEntry is one row of the append-only per-league operation log.
// The (league_id, operation_id) pair is unique; a failed insert-if-absent
// signals a replayed operation.
type OperationLogEntry struct {
	LeagueID    uuid.UUID `json:"league_id"`
	OperationID string    `json:"operation_id"`
	UserID      uuid.UUID `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
