package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
)

// StateSnapshot is the full auction view pushed to joining clients and
// served by the state endpoints.
type StateSnapshot struct {
	Auction          *models.Auction `json:"auction"`
	CurrentLot       *models.Lot     `json:"current_lot,omitempty"`
	SecondsRemaining float64         `json:"seconds_remaining"`
	Lots             []models.Lot    `json:"lots"`
	Rosters          []models.Roster `json:"rosters"`
	RecentBids       []models.Bid    `json:"recent_bids"`
	ServerTime       time.Time       `json:"server_time"`
}

// SnapshotCache is an advisory read-side cache for state snapshots. Any
// disagreement with the store defers to the store; entries are dropped on
// every broadcast event.
type SnapshotCache interface {
	Get(ctx context.Context, auctionID uuid.UUID) (*StateSnapshot, bool)
	Set(ctx context.Context, auctionID uuid.UUID, snap *StateSnapshot)
	Invalidate(ctx context.Context, auctionID uuid.UUID)
}

// NopCache disables snapshot caching.
type NopCache struct{}

func (NopCache) Get(context.Context, uuid.UUID) (*StateSnapshot, bool) { return nil, false }
func (NopCache) Set(context.Context, uuid.UUID, *StateSnapshot)        {}
func (NopCache) Invalidate(context.Context, uuid.UUID)                 {}

// State assembles the current auction snapshot, consulting the advisory
// cache first. ServerTime is always refreshed so clients can sync their
// countdowns even on a cache hit.
func (e *Engine) State(ctx context.Context, auctionID uuid.UUID) (*StateSnapshot, error) {
	now := e.clock.Now()
	if snap, ok := e.cache.Get(ctx, auctionID); ok {
		snap.ServerTime = now
		snap.SecondsRemaining = remainingSeconds(snap.CurrentLot, now)
		return snap, nil
	}

	auction, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("get auction: %w", err)
	}

	lots, err := e.store.ListLots(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	var current *models.Lot
	for i := range lots {
		if lots[i].Status.Biddable() {
			current = &lots[i]
			break
		}
	}

	rosters, err := e.store.ListRosters(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list rosters: %w", err)
	}
	bids, err := e.store.ListBids(ctx, auctionID, 20)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}

	snap := &StateSnapshot{
		Auction:          auction,
		CurrentLot:       current,
		SecondsRemaining: remainingSeconds(current, now),
		Lots:             lots,
		Rosters:          rosters,
		RecentBids:       bids,
		ServerTime:       now,
	}
	e.cache.Set(ctx, auctionID, snap)
	return snap, nil
}

func remainingSeconds(lot *models.Lot, now time.Time) float64 {
	if lot == nil || lot.TimerEndsAt == nil {
		return 0
	}
	if remaining := lot.TimerEndsAt.Sub(now).Seconds(); remaining > 0 {
		return remaining
	}
	return 0
}
