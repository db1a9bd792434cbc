package models

import (
	"time"

	"github.com/google/uuid"
)

type LeagueStatus string

const (
	LeagueStatusPending   LeagueStatus = "PENDING"
	LeagueStatusActive    LeagueStatus = "ACTIVE"
	LeagueStatusCompleted LeagueStatus = "COMPLETED"
)

// LeagueSettings holds the per-league auction configuration snapshot.
// Amounts are integers in minor currency units.
type LeagueSettings struct {
	MinIncrement        int64 `json:"min_increment"`
	BidTimerSec         int   `json:"bid_timer_sec"`
	AntiSnipeSec        int   `json:"anti_snipe_sec"`
	AntiSnipeBufferSec  int   `json:"anti_snipe_buffer_sec"`
	BudgetPerManager    int64 `json:"budget_per_manager"`
	ClubSlotsPerManager int   `json:"club_slots_per_manager"`
}

// League represents a fantasy football league whose clubs go up for auction.
type League struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	CommissionerID uuid.UUID      `json:"commissioner_id"`
	Settings       LeagueSettings `json:"settings"`
	ClubPool       []uuid.UUID    `json:"club_pool"` // ordered club ids offered at auction
	MemberIDs      []uuid.UUID    `json:"member_ids"`
	Status         LeagueStatus   `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsMember reports whether userID belongs to the league.
func (l *League) IsMember(userID uuid.UUID) bool {
	for _, id := range l.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
