// Package engine owns per-auction runtime state: lot lifecycle, the
// anti-snipe timer policy, the closing sweep and the periodic time-sync
// broadcast. The store stays authoritative throughout; the engine's
// active-auction map is an advisory dispatch cache that is reconciled from
// the store on startup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/bidding"
	"github.com/gavelio/gavel/internal/events"
	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
)

var (
	ErrLeagueNotFound  = errors.New("league not found")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already started")
	ErrNotCommissioner = errors.New("only the commissioner can start the auction")
	ErrNoMembers       = errors.New("league has no members")
	ErrNoClubs         = errors.New("league has no clubs to auction")
)

// Advisory countdown thresholds: a lot moves to GOING_ONCE and then
// GOING_TWICE as its deadline approaches. UI hints only; the closing sweep
// is what actually settles the lot.
const (
	goingOnceThreshold  = 10 * time.Second
	goingTwiceThreshold = 5 * time.Second
)

// Config holds engine timing configuration.
type Config struct {
	// SyncInterval is the period of the per-auction time-sync broadcast.
	SyncInterval time.Duration
	// AntiSnipeBuffer is added on top of the league's anti-snipe window
	// when extending a lot timer, unless the league overrides it.
	AntiSnipeBuffer time.Duration
}

func DefaultConfig() Config {
	return Config{
		SyncInterval:    2 * time.Second,
		AntiSnipeBuffer: 3 * time.Second,
	}
}

// Engine coordinates lot lifecycle, timers and event broadcast for all live
// auctions in this process.
type Engine struct {
	store store.Store
	bids  *bidding.App
	bus   events.Bus
	cache SnapshotCache
	clock clockwork.Clock
	cfg   Config

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc // running broadcast loops
	runCtx context.Context                  // parent for loops started after Run
}

func New(st store.Store, bids *bidding.App, bus events.Bus, cache SnapshotCache, clock clockwork.Clock, cfg Config) *Engine {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultConfig().SyncInterval
	}
	if cfg.AntiSnipeBuffer <= 0 {
		cfg.AntiSnipeBuffer = DefaultConfig().AntiSnipeBuffer
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &Engine{
		store:  st,
		bids:   bids,
		bus:    bus,
		cache:  cache,
		clock:  clock,
		cfg:    cfg,
		active: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Run reconciles the active-auction cache from the store and blocks until
// ctx is cancelled. Loops for auctions started later attach to ctx too.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.runCtx = ctx
	e.mu.Unlock()

	live, err := e.store.ListLiveAuctions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile live auctions: %w", err)
	}
	for _, a := range live {
		log.Info().Str("auction_id", a.ID.String()).Msg("resuming live auction after restart")
		e.startLoop(ctx, a.ID)
	}

	<-ctx.Done()
	e.mu.Lock()
	for id, cancel := range e.active {
		cancel()
		delete(e.active, id)
	}
	e.mu.Unlock()
	return nil
}

// StartAuction creates the auction run for a league: one lot per club in
// the pool, nomination order from league membership, first lot opened on
// the league's bid timer.
func (e *Engine) StartAuction(ctx context.Context, leagueID, userID uuid.UUID) (*models.Auction, error) {
	league, err := e.store.GetLeague(ctx, leagueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLeagueNotFound
		}
		return nil, fmt.Errorf("get league: %w", err)
	}
	if league.CommissionerID != userID {
		return nil, ErrNotCommissioner
	}
	if len(league.MemberIDs) == 0 {
		return nil, ErrNoMembers
	}
	if len(league.ClubPool) == 0 {
		return nil, ErrNoClubs
	}
	if _, err := e.store.GetAuction(ctx, leagueID); err == nil {
		return nil, ErrAuctionExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing auction: %w", err)
	}

	now := e.clock.Now()
	auction := &models.Auction{
		ID:              leagueID,
		Status:          models.AuctionStatusLive,
		NominationOrder: append([]uuid.UUID(nil), league.MemberIDs...),
		CurrentLotIndex: 0,
		Settings:        league.Settings,
		StartedAt:       &now,
	}

	lots := make([]models.Lot, len(league.ClubPool))
	for i, clubID := range league.ClubPool {
		lots[i] = models.Lot{
			ID:         uuid.New(),
			AuctionID:  leagueID,
			ClubID:     clubID,
			OrderIndex: i,
			Status:     models.LotStatusPending,
		}
	}

	if err := e.store.CreateAuction(ctx, auction, lots); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	e.publish(ctx, leagueID, events.EventTypeAuctionStarted, events.AuctionStartedPayload{
		AuctionID:       leagueID.String(),
		NominationOrder: auction.NominationOrder,
		LotCount:        len(lots),
		StartedAt:       now,
	})

	if err := e.openLot(ctx, auction, lots[0].ID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	runCtx := e.runCtx
	e.mu.Unlock()
	if runCtx == nil {
		runCtx = ctx
	}
	e.startLoop(runCtx, leagueID)

	log.Info().
		Str("auction_id", leagueID.String()).
		Int("lots", len(lots)).
		Msg("auction started")
	return auction, nil
}

// openLot transitions a pending lot to OPEN with a fresh deadline and
// broadcasts it.
func (e *Engine) openLot(ctx context.Context, auction *models.Auction, lotID uuid.UUID) error {
	endsAt := e.clock.Now().Add(time.Duration(auction.Settings.BidTimerSec) * time.Second)
	var opened bool
	err := e.store.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.OpenLot(ctx, lotID, endsAt)
		opened = ok
		return err
	})
	if err != nil {
		return fmt.Errorf("open lot: %w", err)
	}
	if !opened {
		// Someone else opened or closed it first; the store won.
		return nil
	}
	lot, err := e.store.GetLot(ctx, lotID)
	if err != nil {
		return fmt.Errorf("reload opened lot: %w", err)
	}
	e.publish(ctx, auction.ID, events.EventTypeLotOpened, events.LotOpenedPayload{
		LotID:       lot.ID.String(),
		ClubID:      lot.ClubID.String(),
		OrderIndex:  lot.OrderIndex,
		TimerEndsAt: endsAt,
		BidTimerSec: auction.Settings.BidTimerSec,
	})
	return nil
}

// publish broadcasts an event and drops the cached snapshot for the
// auction. Broadcast failures are logged, never propagated: the store
// commit already happened and remains authoritative.
func (e *Engine) publish(ctx context.Context, auctionID uuid.UUID, typ events.EventType, payload any) {
	e.cache.Invalidate(ctx, auctionID)
	ev, err := events.New(auctionID, typ, e.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("failed to build event")
		return
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("auction_id", auctionID.String()).
			Str("event_type", string(typ)).
			Msg("failed to publish event")
	}
}

// antiSnipeBuffer returns the per-league buffer override, or the engine
// default.
func (e *Engine) antiSnipeBuffer(settings models.LeagueSettings) time.Duration {
	if settings.AntiSnipeBufferSec > 0 {
		return time.Duration(settings.AntiSnipeBufferSec) * time.Second
	}
	return e.cfg.AntiSnipeBuffer
}
