package bidding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
	"github.com/gavelio/gavel/internal/store/memory"
)

type fixture struct {
	store    *memory.Store
	clock    *clockwork.FakeClock
	app      *App
	leagueID uuid.UUID
	lotID    uuid.UUID
	alice    uuid.UUID
	bob      uuid.UUID
	carol    uuid.UUID
}

// newFixture seeds a league with three funded rosters and one open lot.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	clock := clockwork.NewFakeClock()

	f := &fixture{
		store:    st,
		clock:    clock,
		app:      NewApp(st, clock),
		leagueID: uuid.New(),
		lotID:    uuid.New(),
		alice:    uuid.New(),
		bob:      uuid.New(),
		carol:    uuid.New(),
	}

	settings := models.LeagueSettings{
		MinIncrement:        1,
		BidTimerSec:         30,
		AntiSnipeSec:        10,
		BudgetPerManager:    100,
		ClubSlotsPerManager: 2,
	}

	require.NoError(t, st.CreateLeague(ctx, &models.League{
		ID:             f.leagueID,
		Name:           "test league",
		CommissionerID: f.alice,
		Settings:       settings,
		MemberIDs:      []uuid.UUID{f.alice, f.bob, f.carol},
		Status:         models.LeagueStatusActive,
	}))
	for _, userID := range []uuid.UUID{f.alice, f.bob, f.carol} {
		require.NoError(t, st.CreateRoster(ctx, &models.Roster{
			LeagueID:        f.leagueID,
			UserID:          userID,
			BudgetRemaining: settings.BudgetPerManager,
			OwnedClubIDs:    []uuid.UUID{},
			SlotsRemaining:  settings.ClubSlotsPerManager,
		}))
	}

	now := clock.Now()
	endsAt := now.Add(30 * time.Second)
	require.NoError(t, st.CreateAuction(ctx, &models.Auction{
		ID:       f.leagueID,
		Status:   models.AuctionStatusLive,
		Settings: settings,
	}, []models.Lot{{
		ID:          f.lotID,
		AuctionID:   f.leagueID,
		ClubID:      uuid.New(),
		OrderIndex:  0,
		Status:      models.LotStatusOpen,
		TimerEndsAt: &endsAt,
	}}))
	return f
}

func (f *fixture) budget(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	r, err := f.store.GetRoster(context.Background(), f.leagueID, userID)
	require.NoError(t, err)
	return r.BudgetRemaining
}

func (f *fixture) bid(userID uuid.UUID, amount int64, opID string) (*Outcome, error) {
	return f.app.PlaceBid(context.Background(), PlaceBidRequest{
		LeagueID:    f.leagueID,
		UserID:      userID,
		Amount:      amount,
		OperationID: opID,
	})
}

func TestPlaceBidOpeningBid(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.bid(f.alice, 10, "op-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), outcome.Amount)
	assert.Equal(t, f.alice, outcome.BidderID)
	assert.False(t, outcome.Replay)

	lot, err := f.store.GetLot(context.Background(), f.lotID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), lot.CurrentBid)
	require.NotNil(t, lot.LeadingBidder)
	assert.Equal(t, f.alice, *lot.LeadingBidder)

	assert.Equal(t, int64(90), f.budget(t, f.alice))
}

func TestPlaceBidRejectsLowBids(t *testing.T) {
	f := newFixture(t)

	_, err := f.bid(f.alice, 10, "op-1")
	require.NoError(t, err)

	_, err = f.bid(f.bob, 10, "op-2")
	assert.ErrorIs(t, err, ErrBidTooLow)

	_, err = f.bid(f.bob, 0, "op-3")
	assert.ErrorIs(t, err, ErrBidTooLow)

	// Exactly current + increment is the minimum acceptable raise.
	_, err = f.bid(f.bob, 11, "op-4")
	assert.NoError(t, err)
}

func TestPlaceBidRefundsOutbidLeader(t *testing.T) {
	f := newFixture(t)

	_, err := f.bid(f.alice, 10, "op-1")
	require.NoError(t, err)
	require.Equal(t, int64(90), f.budget(t, f.alice))

	_, err = f.bid(f.bob, 20, "op-2")
	require.NoError(t, err)

	// Alice's reservation returns in full; Bob's full amount is held.
	assert.Equal(t, int64(100), f.budget(t, f.alice))
	assert.Equal(t, int64(80), f.budget(t, f.bob))

	// Alice's bid record flips to OUTBID, Bob's is the sole WINNING bid.
	winning, err := f.store.GetWinningBid(context.Background(), f.lotID)
	require.NoError(t, err)
	assert.Equal(t, f.bob, winning.BidderID)
}

func TestPlaceBidSelfRaiseDebitsDelta(t *testing.T) {
	f := newFixture(t)

	_, err := f.bid(f.alice, 10, "op-1")
	require.NoError(t, err)
	_, err = f.bid(f.alice, 25, "op-2")
	require.NoError(t, err)

	// Only the 15 difference leaves the budget on a self-raise.
	assert.Equal(t, int64(75), f.budget(t, f.alice))
}

func TestPlaceBidInsufficientBudget(t *testing.T) {
	f := newFixture(t)

	_, err := f.bid(f.alice, 101, "op-1")
	assert.ErrorIs(t, err, ErrInsufficientBudget)
	assert.Equal(t, int64(100), f.budget(t, f.alice))
}

func TestPlaceBidValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.bid(f.alice, 10, "")
	assert.Error(t, err)

	_, err = f.app.PlaceBid(context.Background(), PlaceBidRequest{
		LeagueID:    uuid.New(),
		UserID:      f.alice,
		Amount:      10,
		OperationID: "op-x",
	})
	assert.ErrorIs(t, err, ErrAuctionNotFound)

	stranger := uuid.New()
	_, err = f.bid(stranger, 10, "op-y")
	assert.ErrorIs(t, err, ErrRosterNotFound)
}

func TestPlaceBidReplayReturnsOriginalOutcome(t *testing.T) {
	f := newFixture(t)

	first, err := f.bid(f.alice, 10, "op-1")
	require.NoError(t, err)

	// Same operation id again, even with a different amount: nothing
	// re-applies, and the committed outcome comes back.
	replay, err := f.bid(f.alice, 99, "op-1")
	require.NoError(t, err)
	assert.True(t, replay.Replay)
	assert.Equal(t, first.BidID, replay.BidID)
	assert.Equal(t, int64(10), replay.Amount)

	assert.Equal(t, int64(90), f.budget(t, f.alice))
	lot, err := f.store.GetLot(context.Background(), f.lotID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), lot.CurrentBid)

	report, err := f.app.VerifyOperationIntegrity(context.Background(), f.leagueID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

// interposingStore injects a competing commit between PlaceBid's read phase
// and its transaction, reproducing the lost-update race.
type interposingStore struct {
	store.Store
	interpose func()
}

func (s *interposingStore) GetRoster(ctx context.Context, leagueID, userID uuid.UUID) (*models.Roster, error) {
	r, err := s.Store.GetRoster(ctx, leagueID, userID)
	if s.interpose != nil {
		fn := s.interpose
		s.interpose = nil
		fn()
	}
	return r, err
}

func TestPlaceBidConcurrentConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wrapped := &interposingStore{Store: f.store}
	wrapped.interpose = func() {
		// Bob's bid lands first, after Alice already read the lot at 0.
		_, err := f.bid(f.bob, 10, "op-bob")
		require.NoError(t, err)
	}
	app := NewApp(wrapped, f.clock)

	_, err := app.PlaceBid(ctx, PlaceBidRequest{
		LeagueID:    f.leagueID,
		UserID:      f.alice,
		Amount:      10,
		OperationID: "op-alice",
	})
	assert.ErrorIs(t, err, ErrLotStateChanged)

	// The losing transaction rolled back completely: no budget hold, no bid
	// record, no operation log entry blocking a retry.
	assert.Equal(t, int64(100), f.budget(t, f.alice))
	assert.Equal(t, int64(90), f.budget(t, f.bob))
	_, err = f.store.GetBidByOperation(ctx, f.leagueID, "op-alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The retry with the same operation id succeeds against fresh state.
	retry, err := app.PlaceBid(ctx, PlaceBidRequest{
		LeagueID:    f.leagueID,
		UserID:      f.alice,
		Amount:      11,
		OperationID: "op-alice",
	})
	require.NoError(t, err)
	assert.False(t, retry.Replay)
}

// abortingStore simulates a database that kills the commit transaction under
// a concurrent update instead of reporting a zero-row conditional update,
// the way postgres behaves at REPEATABLE READ.
type abortingStore struct {
	store.Store
	aborts int
}

func (s *abortingStore) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	if s.aborts > 0 {
		s.aborts--
		return fmt.Errorf("update lot bid: %w", store.ErrTxConflict)
	}
	return s.Store.Atomically(ctx, fn)
}

func TestPlaceBidMapsTxConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wrapped := &abortingStore{Store: f.store, aborts: 1}
	app := NewApp(wrapped, f.clock)

	_, err := app.PlaceBid(ctx, PlaceBidRequest{
		LeagueID:    f.leagueID,
		UserID:      f.alice,
		Amount:      10,
		OperationID: "op-abort",
	})
	// The database abort surfaces as the same retryable conflict class as a
	// failed conditional update, never as an internal error.
	assert.ErrorIs(t, err, ErrLotStateChanged)
	code, retryable := ReasonCode(err)
	assert.Equal(t, "lot_state_changed", code)
	assert.True(t, retryable)

	// Nothing committed, so the retry with the same operation id is fresh.
	outcome, err := app.PlaceBid(ctx, PlaceBidRequest{
		LeagueID:    f.leagueID,
		UserID:      f.alice,
		Amount:      10,
		OperationID: "op-abort",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Replay)
	assert.Equal(t, int64(90), f.budget(t, f.alice))
}

func TestBudgetConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bidders := []uuid.UUID{f.alice, f.bob, f.carol}
	amount := int64(0)
	for i := 0; i < 12; i++ {
		amount += 3
		_, err := f.bid(bidders[i%3], amount, fmt.Sprintf("op-%d", i))
		require.NoError(t, err)
	}

	// Total budget held out equals exactly the current leading bid.
	lot, err := f.store.GetLot(ctx, f.lotID)
	require.NoError(t, err)
	var total int64
	rosters, err := f.store.ListRosters(ctx, f.leagueID)
	require.NoError(t, err)
	for _, r := range rosters {
		total += r.BudgetRemaining
	}
	assert.Equal(t, 3*int64(100)-lot.CurrentBid, total)

	// Exactly one winning bid regardless of how many raises occurred.
	winning, err := f.store.GetWinningBid(ctx, f.lotID)
	require.NoError(t, err)
	assert.Equal(t, lot.CurrentBid, winning.Amount)
}

func TestBidHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 5; i++ {
		_, err := f.bid(f.alice, int64(i*10), fmt.Sprintf("op-%d", i))
		require.NoError(t, err)
	}

	bids, err := f.app.BidHistory(context.Background(), f.leagueID, 3)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, int64(50), bids[0].Amount)
	assert.Equal(t, int64(40), bids[1].Amount)
	assert.Equal(t, int64(30), bids[2].Amount)
}

func TestReasonCodes(t *testing.T) {
	code, retryable := ReasonCode(ErrBidTooLow)
	assert.Equal(t, "bid_too_low", code)
	assert.False(t, retryable)

	code, retryable = ReasonCode(ErrLotStateChanged)
	assert.Equal(t, "lot_state_changed", code)
	assert.True(t, retryable)

	code, retryable = ReasonCode(fmt.Errorf("boom"))
	assert.Equal(t, "internal_error", code)
	assert.True(t, retryable)
}
