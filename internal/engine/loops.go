package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/events"
	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
)

// startLoop launches the broadcast loop for an auction unless one is
// already running.
func (e *Engine) startLoop(parent context.Context, auctionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.active[auctionID]; exists {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	e.active[auctionID] = cancel
	go e.broadcastLoop(ctx, auctionID)
}

func (e *Engine) stopLoop(auctionID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, exists := e.active[auctionID]; exists {
		cancel()
		delete(e.active, auctionID)
	}
}

// broadcastLoop is the per-auction background task: every tick it re-reads
// current state from the store (never trusting its own previous tick),
// pushes a time-sync event, applies the advisory countdown transitions and
// runs the closing sweep. A missed or delayed tick self-heals on the next.
func (e *Engine) broadcastLoop(ctx context.Context, auctionID uuid.UUID) {
	log.Info().Str("auction_id", auctionID.String()).Msg("broadcast loop started")
	ticker := e.clock.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("auction_id", auctionID.String()).Msg("broadcast loop stopped")
			return
		case <-ticker.Chan():
			done, err := e.syncTick(ctx, auctionID)
			if err != nil {
				log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("sync tick failed")
				continue
			}
			if done {
				e.stopLoop(auctionID)
				log.Info().Str("auction_id", auctionID.String()).Msg("auction finished, broadcast loop exiting")
				return
			}
		}
	}
}

// syncTick performs one iteration of the broadcast loop. It reports done
// when the auction is no longer live.
func (e *Engine) syncTick(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	auction, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("get auction: %w", err)
	}
	if auction.Status != models.AuctionStatusLive {
		return true, nil
	}

	lot, err := e.store.GetBiddableLot(ctx, auctionID)
	if errors.Is(err, store.ErrNoBiddableLot) {
		// No lot on the block: either the current one is still pending
		// (missed open) or the run is over. Both are repaired here.
		return e.advance(ctx, auction)
	}
	if err != nil {
		return false, fmt.Errorf("get biddable lot: %w", err)
	}

	now := e.clock.Now()
	if lot.TimerEndsAt != nil && !now.Before(*lot.TimerEndsAt) {
		return e.closeExpiredLot(ctx, auction, lot.ID)
	}

	lot = e.applyCountdown(ctx, auction, lot, now)
	e.publishTimeSync(ctx, auction, lot, now)
	return false, nil
}

// applyCountdown performs the advisory GOING_ONCE / GOING_TWICE
// transitions as the deadline approaches. Any accepted bid resets the lot
// to OPEN, restarting the sequence.
func (e *Engine) applyCountdown(ctx context.Context, auction *models.Auction, lot *models.Lot, now time.Time) *models.Lot {
	if lot.TimerEndsAt == nil {
		return lot
	}
	remaining := lot.TimerEndsAt.Sub(now)

	var from, to models.LotStatus
	switch {
	case lot.Status == models.LotStatusGoingOnce && remaining <= goingTwiceThreshold:
		from, to = models.LotStatusGoingOnce, models.LotStatusGoingTwice
	case lot.Status == models.LotStatusOpen && remaining <= goingOnceThreshold:
		from, to = models.LotStatusOpen, models.LotStatusGoingOnce
	default:
		return lot
	}

	var changed bool
	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.SetLotStatus(ctx, lot.ID, from, to)
		changed = ok
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("lot_id", lot.ID.String()).Msg("countdown transition failed")
		return lot
	}
	if changed {
		lot.Status = to
		e.publish(ctx, auction.ID, events.EventTypeLotStatus, events.LotStatusPayload{
			LotID:  lot.ID.String(),
			Status: to,
		})
	}
	return lot
}

// publishTimeSync pushes the server-authoritative clock and the current
// lot's remaining time to the room.
func (e *Engine) publishTimeSync(ctx context.Context, auction *models.Auction, lot *models.Lot, now time.Time) {
	payload := events.TimeSyncPayload{ServerTime: now}
	if lot != nil {
		id := lot.ID
		payload.LotID = &id
		payload.LotStatus = lot.Status
		payload.TimerEndsAt = lot.TimerEndsAt
		if lot.TimerEndsAt != nil {
			if remaining := lot.TimerEndsAt.Sub(now).Seconds(); remaining > 0 {
				payload.SecondsLeft = remaining
			}
		}
	}
	e.publish(ctx, auction.ID, events.EventTypeTimeSync, payload)
}

// closeExpiredLot settles a lot whose deadline passed and advances the
// auction, all in one transaction. The conditional CloseLot arbitrates the
// race against a last-instant bid: if the bid's extension committed first,
// the close matches nothing and this tick is a no-op.
func (e *Engine) closeExpiredLot(ctx context.Context, auction *models.Auction, lotID uuid.UUID) (bool, error) {
	now := e.clock.Now()
	var (
		closed    *models.Lot
		nextLot   *models.Lot
		completed bool
	)
	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		lot, ok, err := tx.CloseLot(ctx, lotID, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil // late bid won the race; nothing to settle
		}
		closed = lot

		if lot.Status == models.LotStatusSold {
			if err := tx.RecordSale(ctx, auction.ID, *lot.LeadingBidder, lot.ClubID); err != nil {
				return fmt.Errorf("record sale: %w", err)
			}
		}

		nextIndex := lot.OrderIndex + 1
		if err := tx.SetCurrentLotIndex(ctx, auction.ID, nextIndex); err != nil {
			return err
		}

		lots, err := tx.ListLots(ctx, auction.ID)
		if err != nil {
			return err
		}
		for i := range lots {
			if lots[i].OrderIndex == nextIndex && lots[i].Status == models.LotStatusPending {
				endsAt := now.Add(time.Duration(auction.Settings.BidTimerSec) * time.Second)
				ok, err := tx.OpenLot(ctx, lots[i].ID, endsAt)
				if err != nil {
					return err
				}
				if ok {
					next := lots[i]
					next.Status = models.LotStatusOpen
					next.TimerEndsAt = &endsAt
					nextLot = &next
				}
				return nil
			}
		}

		// Nomination order exhausted.
		done, err := tx.CompleteAuction(ctx, auction.ID, now)
		if err != nil {
			return err
		}
		completed = done
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("close lot %s: %w", lotID, err)
	}
	if closed == nil {
		return false, nil
	}

	payload := events.LotClosedPayload{
		LotID:  closed.ID.String(),
		ClubID: closed.ClubID.String(),
		Status: closed.Status,
	}
	if closed.Status == models.LotStatusSold {
		payload.FinalPrice = closed.FinalPrice
		payload.WinnerID = closed.LeadingBidder
	}
	e.publish(ctx, auction.ID, events.EventTypeLotClosed, payload)
	log.Info().
		Str("auction_id", auction.ID.String()).
		Str("lot_id", closed.ID.String()).
		Str("status", string(closed.Status)).
		Msg("lot settled")

	if nextLot != nil {
		e.publish(ctx, auction.ID, events.EventTypeLotOpened, events.LotOpenedPayload{
			LotID:       nextLot.ID.String(),
			ClubID:      nextLot.ClubID.String(),
			OrderIndex:  nextLot.OrderIndex,
			TimerEndsAt: *nextLot.TimerEndsAt,
			BidTimerSec: auction.Settings.BidTimerSec,
		})
		return false, nil
	}
	if completed {
		e.publish(ctx, auction.ID, events.EventTypeAuctionCompleted, events.AuctionCompletedPayload{
			AuctionID:   auction.ID.String(),
			CompletedAt: now,
		})
		return true, nil
	}
	return false, nil
}

// advance repairs a live auction with no biddable lot: it opens the lot at
// the current index if one is still pending, or completes the run.
func (e *Engine) advance(ctx context.Context, auction *models.Auction) (bool, error) {
	lots, err := e.store.ListLots(ctx, auction.ID)
	if err != nil {
		return false, fmt.Errorf("list lots: %w", err)
	}
	for i := range lots {
		if lots[i].Status == models.LotStatusPending {
			if err := e.openLot(ctx, auction, lots[i].ID); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	now := e.clock.Now()
	var completed bool
	err = e.store.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.CompleteAuction(ctx, auction.ID, now)
		completed = ok
		return err
	})
	if err != nil {
		return false, fmt.Errorf("complete auction: %w", err)
	}
	if completed {
		e.publish(ctx, auction.ID, events.EventTypeAuctionCompleted, events.AuctionCompletedPayload{
			AuctionID:   auction.ID.String(),
			CompletedAt: now,
		})
	}
	return true, nil
}
