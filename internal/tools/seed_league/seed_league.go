package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/gavelio/gavel/internal/config"
	"github.com/gavelio/gavel/internal/models"
)

// SeedLeague mirrors the demo league JSON asset.
type SeedLeague struct {
	Name           string                `json:"name"`
	CommissionerID uuid.UUID             `json:"commissioner_id"`
	MemberIDs      []uuid.UUID           `json:"member_ids"`
	ClubPool       []uuid.UUID           `json:"club_pool"`
	Settings       models.LeagueSettings `json:"settings"`
}

func main() {
	godotenv.Load()

	path := "internal/assets/demo_league.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seed SeedLeague
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	leagueID := uuid.New()
	settings, _ := json.Marshal(seed.Settings)
	clubPool, _ := json.Marshal(seed.ClubPool)
	members, _ := json.Marshal(seed.MemberIDs)

	_, err = db.Exec(`
        INSERT INTO leagues (id, name, commissioner_id, settings, club_pool, member_ids, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, leagueID, seed.Name, seed.CommissionerID, settings, clubPool, members, models.LeagueStatusActive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error inserting league: %v\n", err)
		os.Exit(1)
	}

	var inserted, errs int
	for _, userID := range seed.MemberIDs {
		_, err := db.Exec(`
            INSERT INTO rosters (league_id, user_id, budget_remaining, owned_club_ids, slots_remaining)
            VALUES ($1, $2, $3, '[]', $4)
            ON CONFLICT (league_id, user_id) DO NOTHING
        `, leagueID, userID, seed.Settings.BudgetPerManager, seed.Settings.ClubSlotsPerManager)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting roster %s: %v\n", userID, err)
			errs++
			continue
		}
		inserted++
	}

	fmt.Printf("League seed complete: league %s, %d rosters inserted, %d errors\n", leagueID, inserted, errs)
}
