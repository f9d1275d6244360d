// ABOUTME: In-memory room membership table with fan-out delivery
// ABOUTME: Rooms are keyed by a canonical, order-independent pair of user ids

package room

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// separator joins the two sorted ids of a canonical room id.
const separator = "-"

// CanonicalID returns the room id for the unordered pair {a, b}.
// CanonicalID(a, b) == CanonicalID(b, a) for all a, b, and distinct pairs
// never share an id. Ids without the separator join plainly ("u1-u2");
// otherwise each id is length-prefixed ("1:x-3:y-z"). A plain id holds
// exactly one separator and a prefixed one at least two, so the forms
// cannot collide.
func CanonicalID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	if !strings.Contains(a, separator) && !strings.Contains(b, separator) {
		return strings.Join(pair, separator)
	}
	return fmt.Sprintf("%d:%s%s%d:%s", len(pair[0]), pair[0], separator, len(pair[1]), pair[1])
}

// Member is a deliverable connection handle.
type Member interface {
	// ID uniquely identifies the connection.
	ID() string
	// Send queues payload without blocking. It returns false if the
	// payload was not accepted (buffer full or connection closed).
	Send(payload []byte) bool
}

// Router maps room ids to the set of currently joined members.
type Router struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Member // roomID -> memberID -> member
	logger *slog.Logger
}

// NewRouter creates a router. Pass nil logger for default.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rooms:  make(map[string]map[string]Member),
		logger: logger.With("component", "room-router"),
	}
}

// Join adds m to roomID, creating the room on first join. Joining twice is a no-op.
func (r *Router) Join(roomID string, m Member) {
	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Member)
		r.rooms[roomID] = members
	}
	members[m.ID()] = m
	size := len(members)
	r.mu.Unlock()

	r.logger.Debug("member joined", "room_id", roomID, "conn_id", m.ID(), "members", size)
}

// Leave removes memberID from roomID and discards the room when it becomes
// empty. Leaving a room one is not in is a no-op. Returns true if the member
// was present.
func (r *Router) Leave(roomID, memberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := members[memberID]; !exists {
		return false
	}

	delete(members, memberID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	r.logger.Debug("member left", "room_id", roomID, "conn_id", memberID, "members", len(members))
	return true
}

// Broadcast delivers payload to every member of roomID except excludeID
// (empty excludes nobody). Returns the number of members that accepted it.
func (r *Router) Broadcast(roomID string, payload []byte, excludeID string) int {
	// Snapshot under the read lock so sends never hold it
	r.mu.RLock()
	members, ok := r.rooms[roomID]
	if !ok || len(members) == 0 {
		r.mu.RUnlock()
		return 0
	}
	targets := make([]Member, 0, len(members))
	for id, m := range members {
		if excludeID != "" && id == excludeID {
			continue
		}
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.Send(payload) {
			delivered++
			continue
		}
		r.logger.Debug("dropped payload for unavailable member",
			"room_id", roomID,
			"conn_id", m.ID())
	}
	return delivered
}

// Members returns the number of members currently joined to roomID.
func (r *Router) Members(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Rooms returns the number of live rooms.
func (r *Router) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
