package league

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
	"github.com/gavelio/gavel/internal/store/memory"
)

func validRequest() CreateLeagueRequest {
	return CreateLeagueRequest{
		Name:           "premier auction league",
		CommissionerID: uuid.New(),
		Settings: models.LeagueSettings{
			MinIncrement:        1,
			BidTimerSec:         30,
			AntiSnipeSec:        10,
			BudgetPerManager:    200,
			ClubSlotsPerManager: 3,
		},
		ClubPool:  []uuid.UUID{uuid.New(), uuid.New()},
		MemberIDs: []uuid.UUID{uuid.New(), uuid.New()},
	}
}

func TestCreateLeagueFundsRosters(t *testing.T) {
	st := memory.New()
	app := NewApp(st, clockwork.NewFakeClock())
	ctx := context.Background()

	req := validRequest()
	lg, err := app.CreateLeague(ctx, req)
	require.NoError(t, err)

	// The commissioner is always a member, even when omitted from the list.
	assert.Len(t, lg.MemberIDs, 3)
	assert.True(t, lg.IsMember(req.CommissionerID))

	rosters, err := st.ListRosters(ctx, lg.ID)
	require.NoError(t, err)
	require.Len(t, rosters, 3)
	for _, r := range rosters {
		assert.Equal(t, int64(200), r.BudgetRemaining)
		assert.Equal(t, 3, r.SlotsRemaining)
		assert.Empty(t, r.OwnedClubIDs)
	}
}

func TestCreateLeagueValidation(t *testing.T) {
	app := NewApp(memory.New(), clockwork.NewFakeClock())
	ctx := context.Background()

	req := validRequest()
	req.Name = ""
	_, err := app.CreateLeague(ctx, req)
	assert.Error(t, err)

	req = validRequest()
	req.Settings.BudgetPerManager = 0
	_, err = app.CreateLeague(ctx, req)
	assert.Error(t, err)

	req = validRequest()
	req.Settings.BidTimerSec = 0
	_, err = app.CreateLeague(ctx, req)
	assert.Error(t, err)
}

// rosterFailingStore fails the second roster insert inside the creation
// transaction and records the league id, so the rollback can be observed.
type rosterFailingStore struct {
	store.Store
	leagueID uuid.UUID
}

type rosterFailingTx struct {
	store.Tx
	parent  *rosterFailingStore
	rosters int
}

func (s *rosterFailingStore) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Atomically(ctx, func(tx store.Tx) error {
		return fn(&rosterFailingTx{Tx: tx, parent: s})
	})
}

func (t *rosterFailingTx) CreateLeague(ctx context.Context, lg *models.League) error {
	t.parent.leagueID = lg.ID
	return t.Tx.CreateLeague(ctx, lg)
}

func (t *rosterFailingTx) CreateRoster(ctx context.Context, r *models.Roster) error {
	t.rosters++
	if t.rosters > 1 {
		return errors.New("insert roster: out of disk")
	}
	return t.Tx.CreateRoster(ctx, r)
}

func TestCreateLeagueRollsBackOnRosterFailure(t *testing.T) {
	st := memory.New()
	wrapped := &rosterFailingStore{Store: st}
	app := NewApp(wrapped, clockwork.NewFakeClock())
	ctx := context.Background()

	_, err := app.CreateLeague(ctx, validRequest())
	require.Error(t, err)

	// Nothing survived: no league record and no partially funded rosters.
	require.NotEqual(t, uuid.Nil, wrapped.leagueID)
	_, err = st.GetLeague(ctx, wrapped.leagueID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rosters, err := st.ListRosters(ctx, wrapped.leagueID)
	require.NoError(t, err)
	assert.Empty(t, rosters)
}

func TestIsMember(t *testing.T) {
	st := memory.New()
	app := NewApp(st, clockwork.NewFakeClock())
	ctx := context.Background()

	req := validRequest()
	lg, err := app.CreateLeague(ctx, req)
	require.NoError(t, err)

	ok, err := app.IsMember(ctx, lg.ID, req.MemberIDs[0])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = app.IsMember(ctx, lg.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown league reads as non-membership, not an error.
	ok, err = app.IsMember(ctx, uuid.New(), req.CommissionerID)
	require.NoError(t, err)
	assert.False(t, ok)
}
