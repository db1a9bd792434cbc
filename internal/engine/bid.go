package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/bidding"
	"github.com/gavelio/gavel/internal/events"
	"github.com/gavelio/gavel/internal/store"
)

// BidResult is the engine's answer to one bid submission: the committed
// outcome plus any timer extension the anti-snipe policy applied.
type BidResult struct {
	Outcome     *bidding.Outcome `json:"outcome"`
	TimerEndsAt *time.Time       `json:"timer_ends_at,omitempty"`
	Extended    bool             `json:"extended"`
}

// PlaceBid resolves the league's open lot, delegates the atomic commit to
// the bidding service, then evaluates the anti-snipe policy and broadcasts
// the result to the auction room.
func (e *Engine) PlaceBid(ctx context.Context, req bidding.PlaceBidRequest) (*BidResult, error) {
	outcome, err := e.bids.PlaceBid(ctx, req)
	if err != nil {
		return nil, err
	}
	if outcome.Replay {
		// Already applied once; nothing to extend or broadcast again.
		return &BidResult{Outcome: outcome}, nil
	}

	endsAt, extended, err := e.applyAntiSnipe(ctx, outcome)
	if err != nil {
		// The bid itself committed. Log and fall through with whatever
		// deadline the lot currently has.
		log.Error().
			Err(err).
			Str("lot_id", outcome.LotID.String()).
			Msg("anti-snipe evaluation failed after committed bid")
	}

	e.publish(ctx, req.LeagueID, events.EventTypeBidResult, events.BidResultPayload{
		LotID:       outcome.LotID.String(),
		BidID:       outcome.BidID.String(),
		BidderID:    outcome.BidderID.String(),
		Amount:      outcome.Amount,
		TimerEndsAt: endsAt,
		Extended:    extended,
	})

	return &BidResult{Outcome: outcome, TimerEndsAt: endsAt, Extended: extended}, nil
}

// applyAntiSnipe extends the lot deadline when the accepted bid landed
// inside the league's anti-snipe window. The extension only ever moves the
// deadline forward; a concurrent extension that already pushed it further
// wins and is left alone.
func (e *Engine) applyAntiSnipe(ctx context.Context, outcome *bidding.Outcome) (*time.Time, bool, error) {
	auction, err := e.store.GetAuction(ctx, outcome.LeagueID)
	if err != nil {
		return nil, false, fmt.Errorf("get auction: %w", err)
	}
	window := time.Duration(auction.Settings.AntiSnipeSec) * time.Second

	var endsAt *time.Time
	extended := false
	err = e.store.Atomically(ctx, func(tx store.Tx) error {
		lot, err := tx.GetLot(ctx, outcome.LotID)
		if err != nil {
			return err
		}
		endsAt = lot.TimerEndsAt
		if lot.TimerEndsAt == nil || !lot.Status.Biddable() || window <= 0 {
			return nil
		}

		now := e.clock.Now()
		if lot.TimerEndsAt.Sub(now) > window {
			return nil
		}
		target := now.Add(window + e.antiSnipeBuffer(auction.Settings))
		if !target.After(*lot.TimerEndsAt) {
			return nil
		}
		ok, err := tx.ExtendLotTimer(ctx, lot.ID, target)
		if err != nil {
			return err
		}
		if ok {
			endsAt = &target
			extended = true
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return endsAt, extended, err
	}

	if extended {
		log.Debug().
			Str("lot_id", outcome.LotID.String()).
			Time("timer_ends_at", *endsAt).
			Msg("anti-snipe extension applied")
	}
	return endsAt, extended, nil
}
