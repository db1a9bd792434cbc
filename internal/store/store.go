package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gavelio/gavel/internal/models"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrNoBiddableLot is returned when an auction has no lot currently
	// accepting bids.
	ErrNoBiddableLot = errors.New("store: no biddable lot")
	// ErrTxConflict is returned by Atomically when the backing database
	// aborts the transaction because of a concurrent update. No partial
	// effects survive; the caller may retry the whole operation.
	ErrTxConflict = errors.New("store: transaction conflict")
)

// Reader is the read-only surface shared by Store and Tx. Reads performed
// outside a transaction are point-in-time and may be stale by commit time;
// writers re-check state via the conditional primitives on Tx.
type Reader interface {
	GetLeague(ctx context.Context, id uuid.UUID) (*models.League, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error)
	// GetBiddableLot returns the single lot of the auction whose status
	// currently accepts bids, or ErrNoBiddableLot.
	GetBiddableLot(ctx context.Context, auctionID uuid.UUID) (*models.Lot, error)
	ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.Lot, error)
	GetRoster(ctx context.Context, leagueID, userID uuid.UUID) (*models.Roster, error)
	ListRosters(ctx context.Context, leagueID uuid.UUID) ([]models.Roster, error)
	// ListBids returns bids for a league, newest first, capped at limit.
	ListBids(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, lotID uuid.UUID) (*models.Bid, error)
	// GetBidByOperation looks up the bid committed under an operation id,
	// used to answer replayed submissions without re-applying them.
	GetBidByOperation(ctx context.Context, leagueID uuid.UUID, operationID string) (*models.Bid, error)
	// DuplicateOperationIDs reports operation ids that appear on more than
	// one bid record for the league. A non-empty result indicates a broken
	// idempotency invariant.
	DuplicateOperationIDs(ctx context.Context, leagueID uuid.UUID) ([]string, error)
}

// Tx is the transactional surface. Every mutation is conditional: the
// boolean result reports whether the expected prior state still held. A
// false return inside Atomically should abort the transaction; no partial
// effects survive.
type Tx interface {
	Reader

	CreateLeague(ctx context.Context, league *models.League) error
	CreateRoster(ctx context.Context, roster *models.Roster) error

	// InsertOperation appends to the per-league operation log. It reports
	// false, without error, when the (league_id, operation_id) pair already
	// exists. That false is the replay signal.
	InsertOperation(ctx context.Context, entry models.OperationLogEntry) (bool, error)

	// UpdateLotBid applies an accepted bid to the lot: sets current bid,
	// leading bidder and last-bid timestamp, and resets status to OPEN. The
	// update matches only if the lot's current bid and status are still the
	// expected values read before the transaction began.
	UpdateLotBid(ctx context.Context, lotID uuid.UUID, expectedBid int64, expectedStatus models.LotStatus, newBid int64, bidder uuid.UUID, at time.Time) (bool, error)

	// ExtendLotTimer moves timer_ends_at forward to endsAt. It matches only
	// while the lot is biddable and never moves the deadline backward.
	ExtendLotTimer(ctx context.Context, lotID uuid.UUID, endsAt time.Time) (bool, error)

	// AdjustBudget adds delta (which may be negative) to the roster's
	// remaining budget. It reports false when the result would be negative.
	AdjustBudget(ctx context.Context, leagueID, userID uuid.UUID, delta int64) (bool, error)

	// MarkWinningBidsOutbid flips any WINNING bid on the lot to OUTBID and
	// returns the number of records flipped.
	MarkWinningBidsOutbid(ctx context.Context, lotID uuid.UUID) (int, error)

	InsertBid(ctx context.Context, bid *models.Bid) error

	// OpenLot transitions a PENDING lot to OPEN with the given deadline.
	OpenLot(ctx context.Context, lotID uuid.UUID, endsAt time.Time) (bool, error)

	// SetLotStatus performs the advisory countdown transitions
	// (OPEN -> GOING_ONCE -> GOING_TWICE). It matches only on from.
	SetLotStatus(ctx context.Context, lotID uuid.UUID, from, to models.LotStatus) (bool, error)

	// CloseLot settles a lot whose deadline has passed: SOLD with
	// final_price = current_bid when a leading bidder exists, PASSED
	// otherwise. It matches only while the lot is biddable and
	// timer_ends_at <= asOf, and returns the settled lot.
	CloseLot(ctx context.Context, lotID uuid.UUID, asOf time.Time) (*models.Lot, bool, error)

	// RecordSale applies the permanent roster effect of a sale: club
	// ownership and one slot consumed. The budget was already debited when
	// the winning bid was accepted.
	RecordSale(ctx context.Context, leagueID, userID, clubID uuid.UUID) error

	SetCurrentLotIndex(ctx context.Context, auctionID uuid.UUID, index int) error

	// CompleteAuction transitions a LIVE auction to COMPLETED.
	CompleteAuction(ctx context.Context, auctionID uuid.UUID, at time.Time) (bool, error)
}

// Store is the single source of truth for all auction state. The in-process
// engine cache is advisory; any disagreement defers to the store.
type Store interface {
	Reader

	CreateLeague(ctx context.Context, league *models.League) error
	CreateRoster(ctx context.Context, roster *models.Roster) error
	// CreateAuction persists the auction together with its pre-generated
	// lots in a single atomic write.
	CreateAuction(ctx context.Context, auction *models.Auction, lots []models.Lot) error
	// ListLiveAuctions is used to reconcile the engine cache after restart.
	ListLiveAuctions(ctx context.Context) ([]models.Auction, error)

	// Atomically runs fn inside one transaction. If fn returns an error the
	// transaction rolls back and no write made through the Tx survives.
	Atomically(ctx context.Context, fn func(tx Tx) error) error
}
