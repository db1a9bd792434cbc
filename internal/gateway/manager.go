package gateway

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager tracks room membership: which sessions are subscribed to which
// auction. Broadcasts fan out through each session's send buffer; a session
// that cannot keep up is evicted rather than allowed to block the room.
type Manager struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Session]bool
}

func NewManager() *Manager {
	return &Manager{rooms: make(map[uuid.UUID]map[*Session]bool)}
}

func (m *Manager) join(auctionID uuid.UUID, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[auctionID] == nil {
		m.rooms[auctionID] = make(map[*Session]bool)
	}
	m.rooms[auctionID][s] = true

	log.Debug().
		Str("session_id", s.ID).
		Str("auction_id", auctionID.String()).
		Int("room_size", len(m.rooms[auctionID])).
		Msg("session joined room")
}

// leave reports whether the session was actually in the room.
func (m *Manager) leave(auctionID uuid.UUID, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, exists := m.rooms[auctionID]
	if !exists || !sessions[s] {
		return false
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(m.rooms, auctionID)
	}
	return true
}

// dropSession removes the session from every room it had joined and
// returns the affected auction ids so presence can be broadcast.
func (m *Manager) dropSession(s *Session) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var left []uuid.UUID
	for auctionID, sessions := range m.rooms {
		if sessions[s] {
			delete(sessions, s)
			left = append(left, auctionID)
			if len(sessions) == 0 {
				delete(m.rooms, auctionID)
			}
		}
	}
	return left
}

// inRoom reports whether the session currently belongs to the room.
func (m *Manager) inRoom(auctionID uuid.UUID, s *Session) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[auctionID][s]
}

// RoomSize returns the number of sessions in an auction's room.
func (m *Manager) RoomSize(auctionID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[auctionID])
}

// Broadcast sends data to every session in the room, optionally excluding
// one (the actor behind a presence event). Slow sessions are evicted.
func (m *Manager) Broadcast(auctionID uuid.UUID, data []byte, except *Session) {
	m.mu.RLock()
	var targets []*Session
	for s := range m.rooms[auctionID] {
		if s != except {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(data) {
			log.Warn().
				Str("session_id", s.ID).
				Str("user_id", s.UserID.String()).
				Msg("session send buffer full, evicting")
			s.evict()
		}
	}
}
