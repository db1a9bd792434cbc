package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelio/gavel/internal/auth"
	"github.com/gavelio/gavel/internal/bidding"
	"github.com/gavelio/gavel/internal/engine"
	"github.com/gavelio/gavel/internal/events"
	"github.com/gavelio/gavel/internal/gateway"
	"github.com/gavelio/gavel/internal/league"
	"github.com/gavelio/gavel/internal/models"
	"github.com/gavelio/gavel/internal/store/memory"
)

type apiHarness struct {
	handler      http.Handler
	verifier     *auth.Verifier
	engine       *engine.Engine
	clock        *clockwork.FakeClock
	commissioner uuid.UUID
	member       uuid.UUID
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	st := memory.New()
	clock := clockwork.NewFakeClock()
	bus := events.NewRecordingBus()

	verifier, err := auth.NewEphemeral(time.Hour)
	require.NoError(t, err)

	bids := bidding.NewApp(st, clock)
	leagues := league.NewApp(st, clock)
	eng := engine.New(st, bids, bus, nil, clock, engine.DefaultConfig())
	gw := gateway.New(eng, leagues, verifier, clock, gateway.DefaultConnectionConfig())

	return &apiHarness{
		handler:      NewServer(eng, bids, leagues, gw, verifier).Handler(),
		verifier:     verifier,
		engine:       eng,
		clock:        clock,
		commissioner: uuid.New(),
		member:       uuid.New(),
	}
}

func (h *apiHarness) do(t *testing.T, method, path string, asUser uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if asUser != uuid.Nil {
		token, err := h.verifier.CreateToken(asUser)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *apiHarness) createLeague(t *testing.T) uuid.UUID {
	t.Helper()
	w := h.do(t, http.MethodPost, "/leagues", h.commissioner, map[string]any{
		"name": "api test league",
		"settings": models.LeagueSettings{
			MinIncrement:        1,
			BidTimerSec:         30,
			AntiSnipeSec:        10,
			BudgetPerManager:    100,
			ClubSlotsPerManager: 2,
		},
		"club_pool":  []uuid.UUID{uuid.New(), uuid.New()},
		"member_ids": []uuid.UUID{h.commissioner, h.member},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var lg models.League
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lg))
	require.NotEqual(t, uuid.Nil, lg.ID)
	return lg.ID
}

func TestAuthRequired(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/leagues", uuid.Nil, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/leagues/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetLeague(t *testing.T) {
	h := newAPIHarness(t)
	leagueID := h.createLeague(t)

	w := h.do(t, http.MethodGet, "/leagues/"+leagueID.String(), h.member, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var lg models.League
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lg))
	assert.Equal(t, h.commissioner, lg.CommissionerID)
	assert.Len(t, lg.MemberIDs, 2)

	w = h.do(t, http.MethodGet, "/leagues/"+uuid.NewString(), h.member, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartAuctionEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	leagueID := h.createLeague(t)
	base := "/auctions/" + leagueID.String()

	// Only the commissioner can start.
	w := h.do(t, http.MethodPost, base+"/start", h.member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, base+"/start", h.commissioner, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Starting twice conflicts.
	w = h.do(t, http.MethodPost, base+"/start", h.commissioner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodGet, base+"/state", h.member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap engine.StateSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.NotNil(t, snap.CurrentLot)
	assert.Equal(t, models.LotStatusOpen, snap.CurrentLot.Status)
}

func TestBidEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	leagueID := h.createLeague(t)
	base := "/auctions/" + leagueID.String()

	w := h.do(t, http.MethodPost, base+"/start", h.commissioner, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodPost, base+"/bids", h.member, map[string]any{
		"amount":       10,
		"operation_id": "http-op-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result engine.BidResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, int64(10), result.Outcome.Amount)

	// Low bid maps to 400 with a machine-readable reason.
	w = h.do(t, http.MethodPost, base+"/bids", h.member, map[string]any{
		"amount":       10,
		"operation_id": "http-op-2",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errBody map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errBody))
	assert.Equal(t, "bid_too_low", errBody["error"])

	// Replay of the first operation returns the committed outcome.
	w = h.do(t, http.MethodPost, base+"/bids", h.member, map[string]any{
		"amount":       10,
		"operation_id": "http-op-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Outcome.Replay)
}

func TestBidHistoryAndIntegrity(t *testing.T) {
	h := newAPIHarness(t)
	leagueID := h.createLeague(t)
	base := "/auctions/" + leagueID.String()

	w := h.do(t, http.MethodPost, base+"/start", h.commissioner, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 1; i <= 3; i++ {
		w = h.do(t, http.MethodPost, base+"/bids", h.member, map[string]any{
			"amount":       i * 10,
			"operation_id": fmt.Sprintf("hist-op-%d", i),
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = h.do(t, http.MethodGet, base+"/bids?limit=2", h.member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Bids []models.Bid `json:"bids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Bids, 2)
	assert.Equal(t, int64(30), hist.Bids[0].Amount)

	w = h.do(t, http.MethodGet, base+"/integrity", h.member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report bidding.IntegrityReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Consistent)
}

func TestDevTokenRoundTrip(t *testing.T) {
	h := newAPIHarness(t)
	userID := uuid.New()

	w := h.do(t, http.MethodPost, "/auth/token", uuid.Nil, map[string]any{"user_id": userID})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	parsed, err := h.verifier.VerifyToken(body["token"])
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestHealthz(t *testing.T) {
	h := newAPIHarness(t)
	w := h.do(t, http.MethodGet, "/healthz", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
