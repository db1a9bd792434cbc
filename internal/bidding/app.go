// Package bidding implements the transactional bid placement service. All
// budget and lot mutations for one bid commit atomically; concurrent bids on
// the same lot are arbitrated by the store's conditional updates, not by
// in-process locks.
package bidding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
)

// errReplay aborts the commit transaction when the operation log reports a
// duplicate operation id. It never escapes PlaceBid.
var errReplay = errors.New("bidding: operation replayed")

// App handles bid placement business logic.
type App struct {
	store store.Store
	clock clockwork.Clock
}

func NewApp(st store.Store, clock clockwork.Clock) *App {
	return &App{store: st, clock: clock}
}

// PlaceBid validates and commits a single bid against the league's open lot.
//
// Reads happen against current store state; the commit re-checks the lot's
// bid and status in its conditional update, so a concurrent bid that lands
// first surfaces as ErrLotStateChanged rather than a double-apply. A
// duplicate operation id returns the previously committed outcome with
// Replay set, and changes nothing.
func (a *App) PlaceBid(ctx context.Context, req PlaceBidRequest) (*Outcome, error) {
	if req.OperationID == "" {
		return nil, fmt.Errorf("operation id is required")
	}

	auction, err := a.store.GetAuction(ctx, req.LeagueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("get auction: %w", err)
	}

	lot, err := a.store.GetBiddableLot(ctx, auction.ID)
	if err != nil {
		if errors.Is(err, store.ErrNoBiddableLot) {
			return nil, ErrNoOpenLot
		}
		return nil, fmt.Errorf("resolve open lot: %w", err)
	}
	if lot.FinalPrice != nil {
		return nil, ErrNoOpenLot
	}

	minIncrement := auction.Settings.MinIncrement
	if minIncrement < 1 {
		minIncrement = 1
	}
	if lot.CurrentBid > 0 && req.Amount < lot.CurrentBid+minIncrement {
		return nil, ErrBidTooLow
	}
	if req.Amount <= lot.CurrentBid {
		return nil, ErrBidTooLow
	}

	roster, err := a.store.GetRoster(ctx, req.LeagueID, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRosterNotFound
		}
		return nil, fmt.Errorf("get roster: %w", err)
	}

	// A bidder raising their own leading bid only owes the difference; the
	// previous amount is already reserved.
	debit := req.Amount
	refundPrev := false
	if lot.LeadingBidder != nil {
		if *lot.LeadingBidder == req.UserID {
			debit = req.Amount - lot.CurrentBid
		} else {
			refundPrev = true
		}
	}
	if roster.BudgetRemaining < debit {
		return nil, ErrInsufficientBudget
	}

	now := a.clock.Now()
	bid := &models.Bid{
		ID:          uuid.New(),
		LotID:       lot.ID,
		LeagueID:    req.LeagueID,
		BidderID:    req.UserID,
		Amount:      req.Amount,
		Status:      models.BidStatusWinning,
		OperationID: req.OperationID,
		CreatedAt:   now,
	}

	err = a.store.Atomically(ctx, func(tx store.Tx) error {
		inserted, err := tx.InsertOperation(ctx, models.OperationLogEntry{
			LeagueID:    req.LeagueID,
			OperationID: req.OperationID,
			UserID:      req.UserID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errReplay
		}

		ok, err := tx.UpdateLotBid(ctx, lot.ID, lot.CurrentBid, lot.Status, req.Amount, req.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLotStateChanged
		}

		if refundPrev {
			if ok, err := tx.AdjustBudget(ctx, req.LeagueID, *lot.LeadingBidder, lot.CurrentBid); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("refund previous leader %s: roster missing", lot.LeadingBidder)
			}
		}
		if ok, err := tx.AdjustBudget(ctx, req.LeagueID, req.UserID, -debit); err != nil {
			return err
		} else if !ok {
			return ErrInsufficientBudget
		}

		if _, err := tx.MarkWinningBidsOutbid(ctx, lot.ID); err != nil {
			return err
		}
		return tx.InsertBid(ctx, bid)
	})
	if errors.Is(err, errReplay) {
		return a.replayOutcome(ctx, req)
	}
	if errors.Is(err, store.ErrTxConflict) {
		// The database aborted the commit under a concurrent bid. Same
		// conflict class as a failed conditional update.
		return nil, ErrLotStateChanged
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("league_id", req.LeagueID.String()).
		Str("lot_id", lot.ID.String()).
		Str("bidder_id", req.UserID.String()).
		Int64("amount", req.Amount).
		Msg("bid accepted")

	return &Outcome{
		LeagueID:    req.LeagueID,
		LotID:       lot.ID,
		BidID:       bid.ID,
		BidderID:    req.UserID,
		Amount:      req.Amount,
		OperationID: req.OperationID,
		CommittedAt: now,
	}, nil
}

// replayOutcome answers a duplicate submission from the committed bid
// record. The original commit is authoritative; nothing is re-applied.
func (a *App) replayOutcome(ctx context.Context, req PlaceBidRequest) (*Outcome, error) {
	log.Info().
		Str("league_id", req.LeagueID.String()).
		Str("operation_id", req.OperationID).
		Msg("replayed operation detected, returning committed outcome")

	prior, err := a.store.GetBidByOperation(ctx, req.LeagueID, req.OperationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Operation logged but no bid record: the original call was for
			// a non-bid operation or its record is gone. Still a success.
			return &Outcome{
				LeagueID:    req.LeagueID,
				BidderID:    req.UserID,
				Amount:      req.Amount,
				OperationID: req.OperationID,
				Replay:      true,
				CommittedAt: a.clock.Now(),
			}, nil
		}
		return nil, fmt.Errorf("load replayed bid: %w", err)
	}
	return &Outcome{
		LeagueID:    prior.LeagueID,
		LotID:       prior.LotID,
		BidID:       prior.ID,
		BidderID:    prior.BidderID,
		Amount:      prior.Amount,
		OperationID: prior.OperationID,
		Replay:      true,
		CommittedAt: prior.CreatedAt,
	}, nil
}

// BidHistory returns the league's accepted bids, newest first.
func (a *App) BidHistory(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.Bid, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	bids, err := a.store.ListBids(ctx, leagueID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}

// VerifyOperationIntegrity scans for operation ids committed more than once.
// It is a consistency check, not part of the bid hot path.
func (a *App) VerifyOperationIntegrity(ctx context.Context, leagueID uuid.UUID) (*IntegrityReport, error) {
	dups, err := a.store.DuplicateOperationIDs(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("scan operation ids: %w", err)
	}
	return &IntegrityReport{
		LeagueID:     leagueID,
		Consistent:   len(dups) == 0,
		DuplicateOps: dups,
	}, nil
}
