package bidding

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation and concurrency errors surfaced by PlaceBid. Everything here is
// non-fatal: validation errors are client-correctable, ErrLotStateChanged is
// retryable after a state refresh.
var (
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrNoOpenLot          = errors.New("no open lot")
	ErrBidTooLow          = errors.New("bid too low")
	ErrRosterNotFound     = errors.New("roster not found in league")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrLotStateChanged    = errors.New("lot state changed during bid placement, retry")
)

// ReasonCode maps a PlaceBid error onto a machine-readable reason and a
// retryable flag. Concurrency conflicts are retryable after a state
// refresh; validation errors are not.
func ReasonCode(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		return "auction_not_found", false
	case errors.Is(err, ErrNoOpenLot):
		return "no_open_lot", false
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low", false
	case errors.Is(err, ErrRosterNotFound):
		return "roster_not_found", false
	case errors.Is(err, ErrInsufficientBudget):
		return "insufficient_budget", false
	case errors.Is(err, ErrLotStateChanged):
		return "lot_state_changed", true
	default:
		return "internal_error", true
	}
}

// PlaceBidRequest carries one bid submission. OperationID is the caller's
// idempotency key; resubmitting the same id never double-applies.
type PlaceBidRequest struct {
	LeagueID    uuid.UUID
	UserID      uuid.UUID
	Amount      int64
	OperationID string
}

// Outcome is the structured result of an accepted (or replayed) bid.
type Outcome struct {
	LeagueID    uuid.UUID `json:"league_id"`
	LotID       uuid.UUID `json:"lot_id"`
	BidID       uuid.UUID `json:"bid_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	Amount      int64     `json:"amount"`
	OperationID string    `json:"operation_id"`
	Replay      bool      `json:"replay"`
	CommittedAt time.Time `json:"committed_at"`
}

// IntegrityReport is the result of a consistency sweep over a league's
// operation ids. Consistent means no operation id committed more than once.
type IntegrityReport struct {
	LeagueID     uuid.UUID `json:"league_id"`
	Consistent   bool      `json:"consistent"`
	DuplicateOps []string  `json:"duplicate_ops,omitempty"`
}
