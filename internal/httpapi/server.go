// Package httpapi exposes the REST surface: league administration, auction
// control and read models. Real-time interaction lives on the WebSocket
// gateway; these endpoints serve setup, recovery and tooling.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gavelio/gavel/internal/auth"
	"github.com/gavelio/gavel/internal/bidding"
	"github.com/gavelio/gavel/internal/engine"
	"github.com/gavelio/gavel/internal/gateway"
	"github.com/gavelio/gavel/internal/league"
)

type ctxKey int

const userIDKey ctxKey = iota

// Server wires the HTTP routes to the application layer.
type Server struct {
	engine   *engine.Engine
	bids     *bidding.App
	leagues  *league.App
	gateway  *gateway.Gateway
	verifier *auth.Verifier
}

func NewServer(eng *engine.Engine, bids *bidding.App, leagues *league.App, gw *gateway.Gateway, verifier *auth.Verifier) *Server {
	return &Server{engine: eng, bids: bids, leagues: leagues, gateway: gw, verifier: verifier}
}

// Handler builds the full route table with CORS and auth middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /auth/token", s.handleDevToken)

	mux.Handle("POST /leagues", s.requireAuth(s.handleCreateLeague))
	mux.Handle("GET /leagues/{id}", s.requireAuth(s.handleGetLeague))

	mux.Handle("POST /auctions/{id}/start", s.requireAuth(s.handleStartAuction))
	mux.Handle("GET /auctions/{id}/state", s.requireAuth(s.handleAuctionState))
	mux.Handle("POST /auctions/{id}/bids", s.requireAuth(s.handlePlaceBid))
	mux.Handle("GET /auctions/{id}/bids", s.requireAuth(s.handleBidHistory))
	mux.Handle("GET /auctions/{id}/integrity", s.requireAuth(s.handleIntegrity))

	mux.HandleFunc("GET /ws", s.gateway.HandleWS)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	})
	return c.Handler(mux)
}

// requireAuth verifies the bearer token and stashes the caller's user id in
// the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.verifier.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func callerID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return id
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDevToken mints a JWT for a given user id. Development convenience;
// production deployments front this service with a real identity provider.
func (s *Server) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	token, err := s.verifier.CreateToken(req.UserID)
	if err != nil {
		log.Error().Err(err).Msg("token creation failed")
		writeError(w, http.StatusInternalServerError, "token creation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleCreateLeague(w http.ResponseWriter, r *http.Request) {
	var req league.CreateLeagueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.CommissionerID = callerID(r)

	lg, err := s.leagues.CreateLeague(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, lg)
}

func (s *Server) handleGetLeague(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid league id")
		return
	}
	lg, err := s.leagues.GetLeague(r.Context(), id)
	if err != nil {
		if errors.Is(err, league.ErrNotFound) {
			writeError(w, http.StatusNotFound, "league not found")
			return
		}
		log.Error().Err(err).Str("league_id", id.String()).Msg("get league failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, lg)
}

func (s *Server) handleStartAuction(w http.ResponseWriter, r *http.Request) {
	leagueID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	auction, err := s.engine.StartAuction(r.Context(), leagueID, callerID(r))
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrLeagueNotFound):
			writeError(w, http.StatusNotFound, "league not found")
		case errors.Is(err, engine.ErrNotCommissioner):
			writeError(w, http.StatusForbidden, "only the commissioner can start the auction")
		case errors.Is(err, engine.ErrAuctionExists):
			writeError(w, http.StatusConflict, "auction already started")
		case errors.Is(err, engine.ErrNoMembers), errors.Is(err, engine.ErrNoClubs):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("league_id", leagueID.String()).Msg("start auction failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, auction)
}

func (s *Server) handleAuctionState(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	snapshot, err := s.engine.State(r.Context(), auctionID)
	if err != nil {
		if errors.Is(err, engine.ErrAuctionNotFound) {
			writeError(w, http.StatusNotFound, "auction not found")
			return
		}
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("state snapshot failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handlePlaceBid is the HTTP fallback for bid placement, sharing the exact
// same path as WebSocket bids. A client that lost its socket mid-auction can
// resubmit here with the same operation id.
func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var body struct {
		Amount      int64  `json:"amount"`
		OperationID string `json:"operation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.engine.PlaceBid(r.Context(), bidding.PlaceBidRequest{
		LeagueID:    auctionID,
		UserID:      callerID(r),
		Amount:      body.Amount,
		OperationID: body.OperationID,
	})
	if err != nil {
		code, retryable := bidding.ReasonCode(err)
		status := http.StatusBadRequest
		switch code {
		case "auction_not_found":
			status = http.StatusNotFound
		case "lot_state_changed":
			status = http.StatusConflict
		case "internal_error":
			status = http.StatusInternalServerError
			log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("bid placement failed")
		}
		writeJSON(w, status, map[string]any{"error": code, "retryable": retryable})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBidHistory(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	bids, err := s.bids.BidHistory(r.Context(), auctionID, limit)
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("bid history failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": bids})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	report, err := s.bids.VerifyOperationIntegrity(r.Context(), auctionID)
	if err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("integrity sweep failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
