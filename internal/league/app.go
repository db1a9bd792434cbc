// Package league is the league/roster collaborator: it owns league
// creation, membership checks and the settings the auction engine consumes
// read-only at auction start.
package league

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

var ErrNotFound = errors.New("league not found")

// App handles league business logic.
type App struct {
	store store.Store
	clock clockwork.Clock
}

func NewApp(st store.Store, clock clockwork.Clock) *App {
	return &App{store: st, clock: clock}
}

// CreateLeagueRequest carries the inputs for a new league.
type CreateLeagueRequest struct {
	Name           string                `json:"name"`
	CommissionerID uuid.UUID             `json:"commissioner_id"`
	Settings       models.LeagueSettings `json:"settings"`
	ClubPool       []uuid.UUID           `json:"club_pool"`
	MemberIDs      []uuid.UUID           `json:"member_ids"`
}

// CreateLeague persists the league and one roster per member, each funded
// with the configured budget and slot count.
func (a *App) CreateLeague(ctx context.Context, req CreateLeagueRequest) (*models.League, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("league name is required")
	}
	if req.Settings.BudgetPerManager <= 0 {
		return nil, fmt.Errorf("budget per manager must be positive")
	}
	if req.Settings.BidTimerSec <= 0 {
		return nil, fmt.Errorf("bid timer must be positive")
	}

	members := req.MemberIDs
	if !containsID(members, req.CommissionerID) {
		members = append(append([]uuid.UUID(nil), members...), req.CommissionerID)
	}

	lg := &models.League{
		ID:             uuid.New(),
		Name:           req.Name,
		CommissionerID: req.CommissionerID,
		Settings:       req.Settings,
		ClubPool:       req.ClubPool,
		MemberIDs:      members,
		Status:         models.LeagueStatusActive,
		CreatedAt:      a.clock.Now(),
	}
	// League and rosters commit together; a failed roster insert leaves no
	// partially funded league behind.
	err := a.store.Atomically(ctx, func(tx store.Tx) error {
		if err := tx.CreateLeague(ctx, lg); err != nil {
			return fmt.Errorf("create league: %w", err)
		}
		for _, userID := range members {
			roster := &models.Roster{
				LeagueID:        lg.ID,
				UserID:          userID,
				BudgetRemaining: req.Settings.BudgetPerManager,
				OwnedClubIDs:    []uuid.UUID{},
				SlotsRemaining:  req.Settings.ClubSlotsPerManager,
			}
			if err := tx.CreateRoster(ctx, roster); err != nil {
				return fmt.Errorf("create roster for %s: %w", userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("league_id", lg.ID.String()).
		Int("members", len(members)).
		Int("clubs", len(lg.ClubPool)).
		Msg("league created")
	return lg, nil
}

// GetLeague retrieves a league by id.
func (a *App) GetLeague(ctx context.Context, id uuid.UUID) (*models.League, error) {
	lg, err := a.store.GetLeague(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get league: %w", err)
	}
	return lg, nil
}

// IsMember re-checks league membership. Called on every room join; never
// cached by the gateway.
func (a *App) IsMember(ctx context.Context, leagueID, userID uuid.UUID) (bool, error) {
	lg, err := a.GetLeague(ctx, leagueID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return lg.IsMember(userID), nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
