// Package lobby provides room discovery and join-code bookkeeping for the
// example servers shipped alongside netcode. It is auxiliary session
// infrastructure, not part of the core netcode library itself: a game built
// on netcode can dial a Server directly with a PlayerID from any source.
// Adapted from github.com/andersfylling/rayman-slides's internal/lobby/roomcode.go,
// generalized with a mutex (the teacher's RoomStore assumed single-goroutine
// access) and github.com/google/uuid for player id assignment.
package lobby

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andersfylling/netcode/netcode"
)

// Room describes one joinable game instance.
type Room struct {
	Code       string    `json:"code"`
	Host       string    `json:"host"`
	Name       string    `json:"name"`
	Players    []netcode.PlayerID `json:"players"`
	MaxPlayers int       `json:"maxPlayers"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Full reports whether the room has reached MaxPlayers.
func (r *Room) Full() bool { return len(r.Players) >= r.MaxPlayers }

// roomCodeCharset excludes digits and letters easily confused at a glance
// (0/O, 1/I/L, 5/S, 8/B) so a code read aloud over voice chat round-trips.
const roomCodeCharset = "34679ACDEFGHJKMNPQRTUVWXY"

// roomCodeGroups and roomCodeGroupLen give a 3-3-3 code like "K7H-4CX-QRT",
// short enough to read back without the 4-4 block rayman-slides used.
const (
	roomCodeGroups   = 3
	roomCodeGroupLen = 3
)

// codeGenerator generates human-readable room codes from roomCodeCharset.
type codeGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newCodeGenerator() *codeGenerator {
	return &codeGenerator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *codeGenerator) generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(roomCodeGroups*roomCodeGroupLen + roomCodeGroups - 1)
	for group := 0; group < roomCodeGroups; group++ {
		if group > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < roomCodeGroupLen; i++ {
			b.WriteByte(roomCodeCharset[g.rng.Intn(len(roomCodeCharset))])
		}
	}
	return b.String()
}

// Store is an in-memory, concurrency-safe registry of active Rooms.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
	gen   *codeGenerator
	ttl   time.Duration
}

// NewStore creates a Store whose rooms expire ttl after creation unless
// refreshed by Touch.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		rooms: make(map[string]*Room),
		gen:   newCodeGenerator(),
		ttl:   ttl,
	}
}

// Create allocates a new Room with a fresh, collision-checked code and
// registers host as its first player, assigning it a fresh PlayerID.
func (s *Store) Create(host, name string, maxPlayers int) (*Room, netcode.PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := s.gen.generate()
	for i := 0; i < 10; i++ {
		if _, exists := s.rooms[code]; !exists {
			break
		}
		code = s.gen.generate()
	}

	hostID := netcode.PlayerID(uuid.NewString())
	room := &Room{
		Code:       code,
		Host:       host,
		Name:       name,
		Players:    []netcode.PlayerID{hostID},
		MaxPlayers: maxPlayers,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(s.ttl),
	}
	s.rooms[code] = room
	return room, hostID
}

// Join assigns a fresh PlayerID and adds it to the room identified by code.
func (s *Store) Join(code string) (*Room, netcode.PlayerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.lookupLocked(code)
	if err != nil {
		return nil, "", err
	}
	if room.Full() {
		return nil, "", fmt.Errorf("lobby: room %s is full", code)
	}

	id := netcode.PlayerID(uuid.NewString())
	room.Players = append(room.Players, id)
	return room, id, nil
}

// Lookup finds a room by code, without joining it.
func (s *Store) Lookup(code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(code)
}

func (s *Store) lookupLocked(code string) (*Room, error) {
	room, exists := s.rooms[code]
	if !exists {
		return nil, fmt.Errorf("lobby: room not found: %s", code)
	}
	if time.Now().After(room.ExpiresAt) {
		delete(s.rooms, code)
		return nil, fmt.Errorf("lobby: room expired: %s", code)
	}
	return room, nil
}

// Leave removes id from the room identified by code, deleting the room if
// it becomes empty.
func (s *Store) Leave(code string, id netcode.PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[code]
	if !exists {
		return
	}
	remaining := room.Players[:0]
	for _, p := range room.Players {
		if p != id {
			remaining = append(remaining, p)
		}
	}
	room.Players = remaining
	if len(room.Players) == 0 {
		delete(s.rooms, code)
	}
}

// Touch extends a room's expiry by its configured ttl.
func (s *Store) Touch(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, exists := s.rooms[code]; exists {
		room.ExpiresAt = time.Now().Add(s.ttl)
	}
}

// Delete removes a room unconditionally.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

// Cleanup removes all expired rooms. Callers typically run this
// periodically from a background ticker.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for code, room := range s.rooms {
		if now.After(room.ExpiresAt) {
			delete(s.rooms, code)
		}
	}
}
