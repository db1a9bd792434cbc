package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
)

func seedLot(t *testing.T, s *Store, status models.LotStatus, endsAt *time.Time) (uuid.UUID, uuid.UUID) {
	t.Helper()
	auctionID := uuid.New()
	lotID := uuid.New()
	require.NoError(t, s.CreateAuction(context.Background(), &models.Auction{
		ID:     auctionID,
		Status: models.AuctionStatusLive,
	}, []models.Lot{{
		ID:          lotID,
		AuctionID:   auctionID,
		ClubID:      uuid.New(),
		Status:      status,
		TimerEndsAt: endsAt,
	}}))
	return auctionID, lotID
}

func TestUpdateLotBidConditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	endsAt := time.Now().Add(30 * time.Second)
	_, lotID := seedLot(t, s, models.LotStatusGoingTwice, &endsAt)
	bidder := uuid.New()

	err := s.Atomically(ctx, func(tx store.Tx) error {
		// Stale expectation: the lot's bid is 0, not 5.
		ok, err := tx.UpdateLotBid(ctx, lotID, 5, models.LotStatusGoingTwice, 10, bidder, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.UpdateLotBid(ctx, lotID, 0, models.LotStatusGoingTwice, 10, bidder, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	lot, err := s.GetLot(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), lot.CurrentBid)
	// An accepted bid always resets the countdown.
	assert.Equal(t, models.LotStatusOpen, lot.Status)
}

func TestExtendLotTimerForwardOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	endsAt := time.Now().Add(30 * time.Second)
	_, lotID := seedLot(t, s, models.LotStatusOpen, &endsAt)

	err := s.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.ExtendLotTimer(ctx, lotID, endsAt.Add(-5*time.Second))
		require.NoError(t, err)
		assert.False(t, ok, "deadline must never move backward")

		ok, err = tx.ExtendLotTimer(ctx, lotID, endsAt.Add(5*time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	lot, err := s.GetLot(ctx, lotID)
	require.NoError(t, err)
	assert.Equal(t, endsAt.Add(5*time.Second), *lot.TimerEndsAt)
}

func TestAdjustBudgetNeverGoesNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	leagueID, userID := uuid.New(), uuid.New()
	require.NoError(t, s.CreateRoster(ctx, &models.Roster{
		LeagueID:        leagueID,
		UserID:          userID,
		BudgetRemaining: 10,
	}))

	err := s.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.AdjustBudget(ctx, leagueID, userID, -11)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.AdjustBudget(ctx, leagueID, userID, -10)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	r, err := s.GetRoster(ctx, leagueID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.BudgetRemaining)
}

func TestCloseLotConditions(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	endsAt := now.Add(10 * time.Second)
	_, lotID := seedLot(t, s, models.LotStatusOpen, &endsAt)

	// Before the deadline the close matches nothing.
	err := s.Atomically(ctx, func(tx store.Tx) error {
		_, ok, err := tx.CloseLot(ctx, lotID, now)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	// Past the deadline with no leading bidder the lot passes.
	err = s.Atomically(ctx, func(tx store.Tx) error {
		lot, ok, err := tx.CloseLot(ctx, lotID, endsAt)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.LotStatusPassed, lot.Status)

		// A settled lot cannot settle twice.
		_, ok, err = tx.CloseLot(ctx, lotID, endsAt)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestCloseLotSellsToLeader(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	endsAt := now.Add(10 * time.Second)
	_, lotID := seedLot(t, s, models.LotStatusGoingTwice, &endsAt)
	bidder := uuid.New()

	err := s.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.UpdateLotBid(ctx, lotID, 0, models.LotStatusGoingTwice, 25, bidder, now)
		require.NoError(t, err)
		require.True(t, ok)

		lot, ok, err := tx.CloseLot(ctx, lotID, endsAt)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, models.LotStatusSold, lot.Status)
		require.NotNil(t, lot.FinalPrice)
		assert.Equal(t, int64(25), *lot.FinalPrice)
		assert.Equal(t, bidder, *lot.LeadingBidder)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertOperationReplaySignal(t *testing.T) {
	s := New()
	ctx := context.Background()
	entry := models.OperationLogEntry{
		LeagueID:    uuid.New(),
		OperationID: "op-1",
		UserID:      uuid.New(),
	}

	err := s.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.InsertOperation(ctx, entry)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.InsertOperation(ctx, entry)
		require.NoError(t, err)
		assert.False(t, ok, "duplicate operation id must report replay")
		return nil
	})
	require.NoError(t, err)
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	leagueID, userID := uuid.New(), uuid.New()
	require.NoError(t, s.CreateRoster(ctx, &models.Roster{
		LeagueID:        leagueID,
		UserID:          userID,
		BudgetRemaining: 100,
	}))

	boom := errors.New("boom")
	err := s.Atomically(ctx, func(tx store.Tx) error {
		ok, err := tx.AdjustBudget(ctx, leagueID, userID, -40)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.InsertBid(ctx, &models.Bid{
			ID:       uuid.New(),
			LeagueID: leagueID,
			BidderID: userID,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Neither write survived the rollback.
	r, err := s.GetRoster(ctx, leagueID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), r.BudgetRemaining)
	bids, err := s.ListBids(ctx, leagueID, 10)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestGetBiddableLot(t *testing.T) {
	s := New()
	ctx := context.Background()
	auctionID, lotID := seedLot(t, s, models.LotStatusGoingOnce, nil)

	lot, err := s.GetBiddableLot(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, lotID, lot.ID)

	_, err = s.GetBiddableLot(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNoBiddableLot)
}
