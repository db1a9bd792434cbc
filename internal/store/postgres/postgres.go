// Package postgres implements store.Store on pgx. Correctness under
// concurrency comes from conditional UPDATEs whose WHERE clauses re-check
// previously read state, and from insert-if-absent on the operation log;
// bid transactions run at REPEATABLE READ.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store"
)

// Store is the postgres-backed implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// querier abstracts pool vs transaction so readers are shared. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(pgtx pgx.Tx) error {
		return fn(&tx{q: pgtx})
	})
	return txError(err)
}

// txError maps transaction aborts caused by concurrent updates onto
// store.ErrTxConflict. Under REPEATABLE READ a conditional UPDATE that
// loses a row race does not report zero rows; it blocks on the row lock
// and, once the winner commits, fails with SQLSTATE 40001 because the
// WHERE clause cannot be re-evaluated against the new row version.
// Deadlock aborts (40P01) are equally retryable.
func txError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", store.ErrTxConflict, pgErr.Code)
		}
	}
	return err
}

func (s *Store) CreateLeague(ctx context.Context, league *models.League) error {
	return insertLeague(ctx, s.pool, league)
}

func (s *Store) CreateRoster(ctx context.Context, roster *models.Roster) error {
	return insertRoster(ctx, s.pool, roster)
}

func insertLeague(ctx context.Context, q querier, league *models.League) error {
	settings, err := json.Marshal(league.Settings)
	if err != nil {
		return fmt.Errorf("marshal league settings: %w", err)
	}
	clubs, _ := json.Marshal(league.ClubPool)
	members, _ := json.Marshal(league.MemberIDs)
	_, err = q.Exec(ctx, `
		INSERT INTO leagues (id, name, commissioner_id, settings, club_pool, member_ids, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		league.ID, league.Name, league.CommissionerID, settings, clubs, members, league.Status, league.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert league: %w", err)
	}
	return nil
}

func insertRoster(ctx context.Context, q querier, roster *models.Roster) error {
	owned, _ := json.Marshal(roster.OwnedClubIDs)
	_, err := q.Exec(ctx, `
		INSERT INTO rosters (league_id, user_id, budget_remaining, owned_club_ids, slots_remaining)
		VALUES ($1, $2, $3, $4, $5)`,
		roster.LeagueID, roster.UserID, roster.BudgetRemaining, owned, roster.SlotsRemaining)
	if err != nil {
		return fmt.Errorf("insert roster: %w", err)
	}
	return nil
}

func (s *Store) CreateAuction(ctx context.Context, auction *models.Auction, lots []models.Lot) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(pgtx pgx.Tx) error {
		order, _ := json.Marshal(auction.NominationOrder)
		settings, err := json.Marshal(auction.Settings)
		if err != nil {
			return fmt.Errorf("marshal auction settings: %w", err)
		}
		_, err = pgtx.Exec(ctx, `
			INSERT INTO auctions (id, status, nomination_order, current_lot_index, settings, started_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			auction.ID, auction.Status, order, auction.CurrentLotIndex, settings, auction.StartedAt, auction.CompletedAt)
		if err != nil {
			return fmt.Errorf("insert auction: %w", err)
		}
		for i := range lots {
			lot := &lots[i]
			_, err = pgtx.Exec(ctx, `
				INSERT INTO lots (id, auction_id, club_id, order_index, status, current_bid, leading_bidder, timer_ends_at, final_price, last_bid_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				lot.ID, lot.AuctionID, lot.ClubID, lot.OrderIndex, lot.Status, lot.CurrentBid,
				lot.LeadingBidder, lot.TimerEndsAt, lot.FinalPrice, lot.LastBidAt)
			if err != nil {
				return fmt.Errorf("insert lot %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *Store) ListLiveAuctions(ctx context.Context) ([]models.Auction, error) {
	rows, err := s.pool.Query(ctx, auctionColumns+` WHERE status = $1`, models.AuctionStatusLive)
	if err != nil {
		return nil, fmt.Errorf("list live auctions: %w", err)
	}
	defer rows.Close()
	var out []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Store readers delegate to the shared reader over the pool.

func (s *Store) GetLeague(ctx context.Context, id uuid.UUID) (*models.League, error) {
	return getLeague(ctx, s.pool, id)
}

func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return getAuction(ctx, s.pool, id)
}

func (s *Store) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	return getLot(ctx, s.pool, id)
}

func (s *Store) GetBiddableLot(ctx context.Context, auctionID uuid.UUID) (*models.Lot, error) {
	return getBiddableLot(ctx, s.pool, auctionID)
}

func (s *Store) ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.Lot, error) {
	return listLots(ctx, s.pool, auctionID)
}

func (s *Store) GetRoster(ctx context.Context, leagueID, userID uuid.UUID) (*models.Roster, error) {
	return getRoster(ctx, s.pool, leagueID, userID)
}

func (s *Store) ListRosters(ctx context.Context, leagueID uuid.UUID) ([]models.Roster, error) {
	return listRosters(ctx, s.pool, leagueID)
}

func (s *Store) ListBids(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.Bid, error) {
	return listBids(ctx, s.pool, leagueID, limit)
}

func (s *Store) GetWinningBid(ctx context.Context, lotID uuid.UUID) (*models.Bid, error) {
	return getWinningBid(ctx, s.pool, lotID)
}

func (s *Store) GetBidByOperation(ctx context.Context, leagueID uuid.UUID, operationID string) (*models.Bid, error) {
	return getBidByOperation(ctx, s.pool, leagueID, operationID)
}

func (s *Store) DuplicateOperationIDs(ctx context.Context, leagueID uuid.UUID) ([]string, error) {
	return duplicateOperationIDs(ctx, s.pool, leagueID)
}

// notFound maps pgx.ErrNoRows onto the store sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

const auctionColumns = `SELECT id, status, nomination_order, current_lot_index, settings, started_at, completed_at FROM auctions`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	var order, settings []byte
	if err := row.Scan(&a.ID, &a.Status, &order, &a.CurrentLotIndex, &settings, &a.StartedAt, &a.CompletedAt); err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(order, &a.NominationOrder); err != nil {
		return nil, fmt.Errorf("unmarshal nomination order: %w", err)
	}
	if err := json.Unmarshal(settings, &a.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal auction settings: %w", err)
	}
	return &a, nil
}

func getLeague(ctx context.Context, q querier, id uuid.UUID) (*models.League, error) {
	var l models.League
	var settings, clubs, members []byte
	err := q.QueryRow(ctx, `
		SELECT id, name, commissioner_id, settings, club_pool, member_ids, status, created_at
		FROM leagues WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.CommissionerID, &settings, &clubs, &members, &l.Status, &l.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(settings, &l.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal league settings: %w", err)
	}
	if err := json.Unmarshal(clubs, &l.ClubPool); err != nil {
		return nil, fmt.Errorf("unmarshal club pool: %w", err)
	}
	if err := json.Unmarshal(members, &l.MemberIDs); err != nil {
		return nil, fmt.Errorf("unmarshal member ids: %w", err)
	}
	return &l, nil
}

func getAuction(ctx context.Context, q querier, id uuid.UUID) (*models.Auction, error) {
	return scanAuction(q.QueryRow(ctx, auctionColumns+` WHERE id = $1`, id))
}

const lotColumns = `SELECT id, auction_id, club_id, order_index, status, current_bid, leading_bidder, timer_ends_at, final_price, last_bid_at FROM lots`

func scanLot(row pgx.Row) (*models.Lot, error) {
	var l models.Lot
	if err := row.Scan(&l.ID, &l.AuctionID, &l.ClubID, &l.OrderIndex, &l.Status, &l.CurrentBid,
		&l.LeadingBidder, &l.TimerEndsAt, &l.FinalPrice, &l.LastBidAt); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func getLot(ctx context.Context, q querier, id uuid.UUID) (*models.Lot, error) {
	return scanLot(q.QueryRow(ctx, lotColumns+` WHERE id = $1`, id))
}

func getBiddableLot(ctx context.Context, q querier, auctionID uuid.UUID) (*models.Lot, error) {
	lot, err := scanLot(q.QueryRow(ctx, lotColumns+` WHERE auction_id = $1 AND status = ANY($2)`,
		auctionID, biddableStatusStrings()))
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNoBiddableLot
	}
	return lot, err
}

func listLots(ctx context.Context, q querier, auctionID uuid.UUID) ([]models.Lot, error) {
	rows, err := q.Query(ctx, lotColumns+` WHERE auction_id = $1 ORDER BY order_index`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()
	var out []models.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func biddableStatusStrings() []string {
	out := make([]string, len(models.BiddableStatuses))
	for i, s := range models.BiddableStatuses {
		out[i] = string(s)
	}
	return out
}

func getRoster(ctx context.Context, q querier, leagueID, userID uuid.UUID) (*models.Roster, error) {
	var r models.Roster
	var owned []byte
	err := q.QueryRow(ctx, `
		SELECT league_id, user_id, budget_remaining, owned_club_ids, slots_remaining
		FROM rosters WHERE league_id = $1 AND user_id = $2`, leagueID, userID).
		Scan(&r.LeagueID, &r.UserID, &r.BudgetRemaining, &owned, &r.SlotsRemaining)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(owned, &r.OwnedClubIDs); err != nil {
		return nil, fmt.Errorf("unmarshal owned clubs: %w", err)
	}
	return &r, nil
}

func listRosters(ctx context.Context, q querier, leagueID uuid.UUID) ([]models.Roster, error) {
	rows, err := q.Query(ctx, `
		SELECT league_id, user_id, budget_remaining, owned_club_ids, slots_remaining
		FROM rosters WHERE league_id = $1 ORDER BY user_id`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list rosters: %w", err)
	}
	defer rows.Close()
	var out []models.Roster
	for rows.Next() {
		var r models.Roster
		var owned []byte
		if err := rows.Scan(&r.LeagueID, &r.UserID, &r.BudgetRemaining, &owned, &r.SlotsRemaining); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(owned, &r.OwnedClubIDs); err != nil {
			return nil, fmt.Errorf("unmarshal owned clubs: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const bidColumns = `SELECT id, lot_id, league_id, bidder_id, amount, status, operation_id, created_at FROM bids`

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	if err := row.Scan(&b.ID, &b.LotID, &b.LeagueID, &b.BidderID, &b.Amount, &b.Status, &b.OperationID, &b.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func listBids(ctx context.Context, q querier, leagueID uuid.UUID, limit int) ([]models.Bid, error) {
	rows, err := q.Query(ctx, bidColumns+` WHERE league_id = $1 ORDER BY created_at DESC LIMIT $2`, leagueID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()
	var out []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func getWinningBid(ctx context.Context, q querier, lotID uuid.UUID) (*models.Bid, error) {
	return scanBid(q.QueryRow(ctx, bidColumns+` WHERE lot_id = $1 AND status = $2`, lotID, models.BidStatusWinning))
}

func getBidByOperation(ctx context.Context, q querier, leagueID uuid.UUID, operationID string) (*models.Bid, error) {
	return scanBid(q.QueryRow(ctx, bidColumns+` WHERE league_id = $1 AND operation_id = $2`, leagueID, operationID))
}

func duplicateOperationIDs(ctx context.Context, q querier, leagueID uuid.UUID) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT operation_id FROM bids WHERE league_id = $1
		GROUP BY operation_id HAVING count(*) > 1 ORDER BY operation_id`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("scan duplicate operations: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// tx implements store.Tx over a pgx transaction.
type tx struct {
	q pgx.Tx
}

var _ store.Tx = (*tx)(nil)

func (t *tx) GetLeague(ctx context.Context, id uuid.UUID) (*models.League, error) {
	return getLeague(ctx, t.q, id)
}

func (t *tx) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return getAuction(ctx, t.q, id)
}

func (t *tx) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	return getLot(ctx, t.q, id)
}

func (t *tx) GetBiddableLot(ctx context.Context, auctionID uuid.UUID) (*models.Lot, error) {
	return getBiddableLot(ctx, t.q, auctionID)
}

func (t *tx) ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.Lot, error) {
	return listLots(ctx, t.q, auctionID)
}

func (t *tx) GetRoster(ctx context.Context, leagueID, userID uuid.UUID) (*models.Roster, error) {
	return getRoster(ctx, t.q, leagueID, userID)
}

func (t *tx) ListRosters(ctx context.Context, leagueID uuid.UUID) ([]models.Roster, error) {
	return listRosters(ctx, t.q, leagueID)
}

func (t *tx) ListBids(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.Bid, error) {
	return listBids(ctx, t.q, leagueID, limit)
}

func (t *tx) GetWinningBid(ctx context.Context, lotID uuid.UUID) (*models.Bid, error) {
	return getWinningBid(ctx, t.q, lotID)
}

func (t *tx) GetBidByOperation(ctx context.Context, leagueID uuid.UUID, operationID string) (*models.Bid, error) {
	return getBidByOperation(ctx, t.q, leagueID, operationID)
}

func (t *tx) DuplicateOperationIDs(ctx context.Context, leagueID uuid.UUID) ([]string, error) {
	return duplicateOperationIDs(ctx, t.q, leagueID)
}

func (t *tx) CreateLeague(ctx context.Context, league *models.League) error {
	return insertLeague(ctx, t.q, league)
}

func (t *tx) CreateRoster(ctx context.Context, roster *models.Roster) error {
	return insertRoster(ctx, t.q, roster)
}

func (t *tx) InsertOperation(ctx context.Context, entry models.OperationLogEntry) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO auction_logs (league_id, operation_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (league_id, operation_id) DO NOTHING`,
		entry.LeagueID, entry.OperationID, entry.UserID, entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert operation log: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) UpdateLotBid(ctx context.Context, lotID uuid.UUID, expectedBid int64, expectedStatus models.LotStatus, newBid int64, bidder uuid.UUID, at time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE lots SET current_bid = $1, leading_bidder = $2, last_bid_at = $3, status = $4
		WHERE id = $5 AND current_bid = $6 AND status = $7 AND final_price IS NULL`,
		newBid, bidder, at, models.LotStatusOpen, lotID, expectedBid, expectedStatus)
	if err != nil {
		return false, fmt.Errorf("update lot bid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) ExtendLotTimer(ctx context.Context, lotID uuid.UUID, endsAt time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE lots SET timer_ends_at = $1
		WHERE id = $2 AND status = ANY($3) AND timer_ends_at < $1`,
		endsAt, lotID, biddableStatusStrings())
	if err != nil {
		return false, fmt.Errorf("extend lot timer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) AdjustBudget(ctx context.Context, leagueID, userID uuid.UUID, delta int64) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE rosters SET budget_remaining = budget_remaining + $1
		WHERE league_id = $2 AND user_id = $3 AND budget_remaining + $1 >= 0`,
		delta, leagueID, userID)
	if err != nil {
		return false, fmt.Errorf("adjust budget: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) MarkWinningBidsOutbid(ctx context.Context, lotID uuid.UUID) (int, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE bids SET status = $1 WHERE lot_id = $2 AND status = $3`,
		models.BidStatusOutbid, lotID, models.BidStatusWinning)
	if err != nil {
		return 0, fmt.Errorf("mark bids outbid: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *tx) InsertBid(ctx context.Context, bid *models.Bid) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bids (id, lot_id, league_id, bidder_id, amount, status, operation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		bid.ID, bid.LotID, bid.LeagueID, bid.BidderID, bid.Amount, bid.Status, bid.OperationID, bid.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func (t *tx) OpenLot(ctx context.Context, lotID uuid.UUID, endsAt time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE lots SET status = $1, timer_ends_at = $2 WHERE id = $3 AND status = $4`,
		models.LotStatusOpen, endsAt, lotID, models.LotStatusPending)
	if err != nil {
		return false, fmt.Errorf("open lot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) SetLotStatus(ctx context.Context, lotID uuid.UUID, from, to models.LotStatus) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE lots SET status = $1 WHERE id = $2 AND status = $3`, to, lotID, from)
	if err != nil {
		return false, fmt.Errorf("set lot status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *tx) CloseLot(ctx context.Context, lotID uuid.UUID, asOf time.Time) (*models.Lot, bool, error) {
	lot, err := scanLot(t.q.QueryRow(ctx, `
		UPDATE lots SET
			status = CASE WHEN leading_bidder IS NULL THEN $1 ELSE $2 END,
			final_price = CASE WHEN leading_bidder IS NULL THEN NULL ELSE current_bid END
		WHERE id = $3 AND status = ANY($4) AND timer_ends_at <= $5
		RETURNING id, auction_id, club_id, order_index, status, current_bid, leading_bidder, timer_ends_at, final_price, last_bid_at`,
		models.LotStatusPassed, models.LotStatusSold, lotID, biddableStatusStrings(), asOf))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("close lot: %w", err)
	}
	return lot, true, nil
}

func (t *tx) RecordSale(ctx context.Context, leagueID, userID, clubID uuid.UUID) error {
	clubJSON, _ := json.Marshal(clubID)
	tag, err := t.q.Exec(ctx, `
		UPDATE rosters SET
			owned_club_ids = owned_club_ids || $1::jsonb,
			slots_remaining = slots_remaining - 1
		WHERE league_id = $2 AND user_id = $3`,
		clubJSON, leagueID, userID)
	if err != nil {
		return fmt.Errorf("record sale: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) SetCurrentLotIndex(ctx context.Context, auctionID uuid.UUID, index int) error {
	_, err := t.q.Exec(ctx, `UPDATE auctions SET current_lot_index = $1 WHERE id = $2`, index, auctionID)
	if err != nil {
		return fmt.Errorf("set current lot index: %w", err)
	}
	return nil
}

func (t *tx) CompleteAuction(ctx context.Context, auctionID uuid.UUID, at time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE auctions SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4`,
		models.AuctionStatusCompleted, at, auctionID, models.AuctionStatusLive)
	if err != nil {
		return false, fmt.Errorf("complete auction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
