package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionStatus defines the status of an auction run.
type AuctionStatus string

const (
	AuctionStatusPending   AuctionStatus = "PENDING"
	AuctionStatusLive      AuctionStatus = "LIVE"
	AuctionStatusCompleted AuctionStatus = "COMPLETED"
)

// Auction is the live session over a league's club pool.
// Its ID is the league ID: one auction run per league.
type Auction struct {
	ID              uuid.UUID      `json:"id"`
	Status          AuctionStatus  `json:"status"`
	NominationOrder []uuid.UUID    `json:"nomination_order"`
	CurrentLotIndex int            `json:"current_lot_index"`
	Settings        LeagueSettings `json:"settings"` // snapshot taken at start
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}
