// Package memory provides an in-memory Store implementation with the same
// conditional-update semantics as the postgres store. It backs unit tests
// and local development; transactions are serialized by a single mutex and
// rolled back by snapshot restore.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
)

type opKey struct {
	leagueID    uuid.UUID
	operationID string
}

type rosterKey struct {
	leagueID uuid.UUID
	userID   uuid.UUID
}

type state struct {
	leagues  map[uuid.UUID]*models.League
	auctions map[uuid.UUID]*models.Auction
	lots     map[uuid.UUID]*models.Lot
	rosters  map[rosterKey]*models.Roster
	bids     []*models.Bid
	oplog    map[opKey]models.OperationLogEntry
}

// Store is the in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex
	st state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: state{
		leagues:  make(map[uuid.UUID]*models.League),
		auctions: make(map[uuid.UUID]*models.Auction),
		lots:     make(map[uuid.UUID]*models.Lot),
		rosters:  make(map[rosterKey]*models.Roster),
		oplog:    make(map[opKey]models.OperationLogEntry),
	}}
}

// snapshot deep-copies the full state so Atomically can roll back on error.
// Test and development datasets are small enough that this stays cheap.
func (s *state) snapshot() state {
	cp := state{
		leagues:  make(map[uuid.UUID]*models.League, len(s.leagues)),
		auctions: make(map[uuid.UUID]*models.Auction, len(s.auctions)),
		lots:     make(map[uuid.UUID]*models.Lot, len(s.lots)),
		rosters:  make(map[rosterKey]*models.Roster, len(s.rosters)),
		bids:     make([]*models.Bid, len(s.bids)),
		oplog:    make(map[opKey]models.OperationLogEntry, len(s.oplog)),
	}
	for k, v := range s.leagues {
		cp.leagues[k] = cloneLeague(v)
	}
	for k, v := range s.auctions {
		cp.auctions[k] = cloneAuction(v)
	}
	for k, v := range s.lots {
		cp.lots[k] = cloneLot(v)
	}
	for k, v := range s.rosters {
		cp.rosters[k] = cloneRoster(v)
	}
	for i, b := range s.bids {
		bb := *b
		cp.bids[i] = &bb
	}
	for k, v := range s.oplog {
		cp.oplog[k] = v
	}
	return cp
}

func cloneLeague(l *models.League) *models.League {
	cp := *l
	cp.ClubPool = append([]uuid.UUID(nil), l.ClubPool...)
	cp.MemberIDs = append([]uuid.UUID(nil), l.MemberIDs...)
	return &cp
}

func cloneAuction(a *models.Auction) *models.Auction {
	cp := *a
	cp.NominationOrder = append([]uuid.UUID(nil), a.NominationOrder...)
	if a.StartedAt != nil {
		t := *a.StartedAt
		cp.StartedAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func cloneLot(l *models.Lot) *models.Lot {
	cp := *l
	if l.LeadingBidder != nil {
		v := *l.LeadingBidder
		cp.LeadingBidder = &v
	}
	if l.TimerEndsAt != nil {
		t := *l.TimerEndsAt
		cp.TimerEndsAt = &t
	}
	if l.FinalPrice != nil {
		v := *l.FinalPrice
		cp.FinalPrice = &v
	}
	if l.LastBidAt != nil {
		t := *l.LastBidAt
		cp.LastBidAt = &t
	}
	return &cp
}

func cloneRoster(r *models.Roster) *models.Roster {
	cp := *r
	cp.OwnedClubIDs = append([]uuid.UUID(nil), r.OwnedClubIDs...)
	return &cp
}

// tx operates directly on the live state while the store mutex is held.
type tx struct {
	st *state
}

var _ store.Tx = (*tx)(nil)

func (s *Store) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	saved := s.st.snapshot()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = saved
		return err
	}
	return nil
}

func (s *Store) CreateLeague(ctx context.Context, league *models.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).CreateLeague(ctx, league)
}

func (s *Store) CreateRoster(ctx context.Context, roster *models.Roster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).CreateRoster(ctx, roster)
}

func (s *Store) CreateAuction(ctx context.Context, auction *models.Auction, lots []models.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.auctions[auction.ID] = cloneAuction(auction)
	for i := range lots {
		lot := lots[i]
		s.st.lots[lot.ID] = cloneLot(&lot)
	}
	return nil
}

func (s *Store) ListLiveAuctions(ctx context.Context) ([]models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Auction
	for _, a := range s.st.auctions {
		if a.Status == models.AuctionStatusLive {
			out = append(out, *cloneAuction(a))
		}
	}
	return out, nil
}

// Reader methods on Store take the mutex and delegate to the shared readers.

func (s *Store) GetLeague(ctx context.Context, id uuid.UUID) (*models.League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).GetLeague(ctx, id)
}

func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).GetAuction(ctx, id)
}

func (s *Store) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).GetLot(ctx, id)
}

func (s *Store) GetBiddableLot(ctx context.Context, auctionID uuid.UUID) (*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).GetBiddableLot(ctx, auctionID)
}

func (s *Store) ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).ListLots(ctx, auctionID)
}

func (s *Store) GetRoster(ctx context.Context, leagueID, userID uuid.UUID) (*models.Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).GetRoster(ctx, leagueID, userID)
}

func (s *Store) ListRosters(ctx context.Context, leagueID uuid.UUID) ([]models.Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).ListRosters(ctx, leagueID)
}

func (s *Store) ListBids(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).ListBids(ctx, leagueID, limit)
}

func (s *Store) GetWinningBid(ctx context.Context, lotID uuid.UUID) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).GetWinningBid(ctx, lotID)
}

func (s *Store) GetBidByOperation(ctx context.Context, leagueID uuid.UUID, operationID string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).GetBidByOperation(ctx, leagueID, operationID)
}

func (s *Store) DuplicateOperationIDs(ctx context.Context, leagueID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: &s.st}).DuplicateOperationIDs(ctx, leagueID)
}

// Tx reader methods.

func (t *tx) GetLeague(ctx context.Context, id uuid.UUID) (*models.League, error) {
	l, ok := t.st.leagues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneLeague(l), nil
}

func (t *tx) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, ok := t.st.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAuction(a), nil
}

func (t *tx) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	l, ok := t.st.lots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneLot(l), nil
}

func (t *tx) GetBiddableLot(ctx context.Context, auctionID uuid.UUID) (*models.Lot, error) {
	for _, l := range t.st.lots {
		if l.AuctionID == auctionID && l.Status.Biddable() {
			return cloneLot(l), nil
		}
	}
	return nil, store.ErrNoBiddableLot
}

func (t *tx) ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.Lot, error) {
	var out []models.Lot
	for _, l := range t.st.lots {
		if l.AuctionID == auctionID {
			out = append(out, *cloneLot(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (t *tx) GetRoster(ctx context.Context, leagueID, userID uuid.UUID) (*models.Roster, error) {
	r, ok := t.st.rosters[rosterKey{leagueID, userID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRoster(r), nil
}

func (t *tx) ListRosters(ctx context.Context, leagueID uuid.UUID) ([]models.Roster, error) {
	var out []models.Roster
	for k, r := range t.st.rosters {
		if k.leagueID == leagueID {
			out = append(out, *cloneRoster(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (t *tx) ListBids(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.Bid, error) {
	var out []models.Bid
	for i := len(t.st.bids) - 1; i >= 0 && len(out) < limit; i-- {
		if t.st.bids[i].LeagueID == leagueID {
			out = append(out, *t.st.bids[i])
		}
	}
	return out, nil
}

func (t *tx) GetWinningBid(ctx context.Context, lotID uuid.UUID) (*models.Bid, error) {
	for _, b := range t.st.bids {
		if b.LotID == lotID && b.Status == models.BidStatusWinning {
			bb := *b
			return &bb, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) GetBidByOperation(ctx context.Context, leagueID uuid.UUID, operationID string) (*models.Bid, error) {
	for _, b := range t.st.bids {
		if b.LeagueID == leagueID && b.OperationID == operationID {
			bb := *b
			return &bb, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) DuplicateOperationIDs(ctx context.Context, leagueID uuid.UUID) ([]string, error) {
	seen := make(map[string]int)
	for _, b := range t.st.bids {
		if b.LeagueID == leagueID {
			seen[b.OperationID]++
		}
	}
	var dups []string
	for op, n := range seen {
		if n > 1 {
			dups = append(dups, op)
		}
	}
	sort.Strings(dups)
	return dups, nil
}

// Tx mutation methods.

func (t *tx) CreateLeague(ctx context.Context, league *models.League) error {
	t.st.leagues[league.ID] = cloneLeague(league)
	return nil
}

func (t *tx) CreateRoster(ctx context.Context, roster *models.Roster) error {
	t.st.rosters[rosterKey{roster.LeagueID, roster.UserID}] = cloneRoster(roster)
	return nil
}

func (t *tx) InsertOperation(ctx context.Context, entry models.OperationLogEntry) (bool, error) {
	k := opKey{entry.LeagueID, entry.OperationID}
	if _, exists := t.st.oplog[k]; exists {
		return false, nil
	}
	t.st.oplog[k] = entry
	return true, nil
}

func (t *tx) UpdateLotBid(ctx context.Context, lotID uuid.UUID, expectedBid int64, expectedStatus models.LotStatus, newBid int64, bidder uuid.UUID, at time.Time) (bool, error) {
	l, ok := t.st.lots[lotID]
	if !ok || l.CurrentBid != expectedBid || l.Status != expectedStatus {
		return false, nil
	}
	l.CurrentBid = newBid
	b := bidder
	l.LeadingBidder = &b
	ts := at
	l.LastBidAt = &ts
	l.Status = models.LotStatusOpen
	return true, nil
}

func (t *tx) ExtendLotTimer(ctx context.Context, lotID uuid.UUID, endsAt time.Time) (bool, error) {
	l, ok := t.st.lots[lotID]
	if !ok || !l.Status.Biddable() || l.TimerEndsAt == nil || !l.TimerEndsAt.Before(endsAt) {
		return false, nil
	}
	ts := endsAt
	l.TimerEndsAt = &ts
	return true, nil
}

func (t *tx) AdjustBudget(ctx context.Context, leagueID, userID uuid.UUID, delta int64) (bool, error) {
	r, ok := t.st.rosters[rosterKey{leagueID, userID}]
	if !ok || r.BudgetRemaining+delta < 0 {
		return false, nil
	}
	r.BudgetRemaining += delta
	return true, nil
}

func (t *tx) MarkWinningBidsOutbid(ctx context.Context, lotID uuid.UUID) (int, error) {
	n := 0
	for _, b := range t.st.bids {
		if b.LotID == lotID && b.Status == models.BidStatusWinning {
			b.Status = models.BidStatusOutbid
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertBid(ctx context.Context, bid *models.Bid) error {
	bb := *bid
	t.st.bids = append(t.st.bids, &bb)
	return nil
}

func (t *tx) OpenLot(ctx context.Context, lotID uuid.UUID, endsAt time.Time) (bool, error) {
	l, ok := t.st.lots[lotID]
	if !ok || l.Status != models.LotStatusPending {
		return false, nil
	}
	l.Status = models.LotStatusOpen
	ts := endsAt
	l.TimerEndsAt = &ts
	return true, nil
}

func (t *tx) SetLotStatus(ctx context.Context, lotID uuid.UUID, from, to models.LotStatus) (bool, error) {
	l, ok := t.st.lots[lotID]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	return true, nil
}

func (t *tx) CloseLot(ctx context.Context, lotID uuid.UUID, asOf time.Time) (*models.Lot, bool, error) {
	l, ok := t.st.lots[lotID]
	if !ok || !l.Status.Biddable() || l.TimerEndsAt == nil || l.TimerEndsAt.After(asOf) {
		return nil, false, nil
	}
	if l.LeadingBidder != nil {
		l.Status = models.LotStatusSold
		fp := l.CurrentBid
		l.FinalPrice = &fp
	} else {
		l.Status = models.LotStatusPassed
	}
	return cloneLot(l), true, nil
}

func (t *tx) RecordSale(ctx context.Context, leagueID, userID, clubID uuid.UUID) error {
	r, ok := t.st.rosters[rosterKey{leagueID, userID}]
	if !ok {
		return store.ErrNotFound
	}
	r.OwnedClubIDs = append(r.OwnedClubIDs, clubID)
	r.SlotsRemaining--
	return nil
}

func (t *tx) SetCurrentLotIndex(ctx context.Context, auctionID uuid.UUID, index int) error {
	a, ok := t.st.auctions[auctionID]
	if !ok {
		return store.ErrNotFound
	}
	a.CurrentLotIndex = index
	return nil
}

func (t *tx) CompleteAuction(ctx context.Context, auctionID uuid.UUID, at time.Time) (bool, error) {
	a, ok := t.st.auctions[auctionID]
	if !ok || a.Status != models.AuctionStatusLive {
		return false, nil
	}
	a.Status = models.AuctionStatusCompleted
	ts := at
	a.CompletedAt = &ts
	return true, nil
}
