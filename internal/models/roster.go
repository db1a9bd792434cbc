package models

import "github.com/google/uuid"

// Roster is one manager's budget and club ownership within one league.
// BudgetRemaining already reflects any outstanding (leading) bid: the bid
// amount is reserved on acceptance and refunded in full when outbid.
type Roster struct {
	LeagueID        uuid.UUID   `json:"league_id"`
	UserID          uuid.UUID   `json:"user_id"`
	BudgetRemaining int64       `json:"budget_remaining"`
	OwnedClubIDs    []uuid.UUID `json:"owned_club_ids"`
	SlotsRemaining  int         `json:"slots_remaining"`
}
