package rooms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Kind distinguishes the two room flavours.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

type room struct {
	kind    Kind
	members map[int]struct{}
}

// Registry owns the room-to-members mapping and its inverse, the
// user-to-rooms index. Both maps are mutated under one lock so no caller can
// observe one updated without the other. Empty rooms are deleted, never
// retained; the same goes for empty index entries.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[string]*room
	userRooms map[int]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:     make(map[string]*room),
		userRooms: make(map[int]map[string]struct{}),
	}
}

// DirectRoomID derives the deterministic id for an unordered user pair.
func DirectRoomID(a, b int) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("direct_%d_%d", a, b)
}

// ResolveDirectRoom returns the direct room for the pair, creating it with
// both users as members if it does not exist yet. Idempotent; symmetric in
// its arguments.
func (r *Registry) ResolveDirectRoom(a, b int) string {
	roomID := DirectRoomID(a, b)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = &room{kind: KindDirect, members: make(map[int]struct{}, 2)}
	}
	r.addMemberLocked(roomID, a)
	r.addMemberLocked(roomID, b)
	return roomID
}

// CreateGroupRoom allocates a fresh group room containing the given members.
// Duplicate ids are collapsed. The member list must be non-empty.
func (r *Registry) CreateGroupRoom(memberIDs []int) string {
	roomID := "group_" + uuid.NewString()
	members := lo.Uniq(memberIDs)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomID] = &room{kind: KindGroup, members: make(map[int]struct{}, len(members))}
	for _, id := range members {
		r.addMemberLocked(roomID, id)
	}
	return roomID
}

// AddMember adds the user to an existing room and updates the index.
// Returns false when the room does not exist.
func (r *Registry) AddMember(roomID string, userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		return false
	}
	r.addMemberLocked(roomID, userID)
	return true
}

// RemoveMember removes the user from the room, deleting the room when its
// member set becomes empty.
func (r *Registry) RemoveMember(roomID string, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeMemberLocked(roomID, userID)
}

// RemoveUserEverywhere removes the user from every room it belongs to and
// drops its index entry. Returns the ids of the rooms that were left.
func (r *Registry) RemoveUserEverywhere(userID int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := lo.Keys(r.userRooms[userID])
	for _, roomID := range left {
		r.removeMemberLocked(roomID, userID)
	}
	return left
}

// Exists reports whether the room currently exists. An empty room never
// exists by construction.
func (r *Registry) Exists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// KindOf returns the room kind, if the room exists.
func (r *Registry) KindOf(roomID string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	return rm.kind, true
}

// MembersOf returns the sorted member list of the room, or an empty slice
// when the room is absent. Absence and emptiness are indistinguishable.
func (r *Registry) MembersOf(roomID string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return []int{}
	}
	members := lo.Keys(rm.members)
	sort.Ints(members)
	return members
}

// RoomsOf returns the ids of the rooms the user belongs to.
func (r *Registry) RoomsOf(userID int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := lo.Keys(r.userRooms[userID])
	sort.Strings(ids)
	return ids
}

// IsMember reports whether the user belongs to the room.
func (r *Registry) IsMember(roomID string, userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userRooms[userID][roomID]
	return ok
}

// Summary is a consistent point-in-time view of one room.
type Summary struct {
	RoomID  string
	Kind    Kind
	Members []int
}

// Describe returns summaries of every room the user belongs to, taken under
// a single lock hold so members and index agree.
func (r *Registry) Describe(userID int) []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomIDs := lo.Keys(r.userRooms[userID])
	sort.Strings(roomIDs)

	summaries := make([]Summary, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		rm, ok := r.rooms[roomID]
		if !ok {
			continue
		}
		members := lo.Keys(rm.members)
		sort.Ints(members)
		summaries = append(summaries, Summary{RoomID: roomID, Kind: rm.kind, Members: members})
	}
	return summaries
}

// Counts reports the number of rooms and indexed users, for introspection.
func (r *Registry) Counts() (rooms int, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.userRooms)
}

func (r *Registry) addMemberLocked(roomID string, userID int) {
	r.rooms[roomID].members[userID] = struct{}{}
	if _, ok := r.userRooms[userID]; !ok {
		r.userRooms[userID] = make(map[string]struct{})
	}
	r.userRooms[userID][roomID] = struct{}{}
}

func (r *Registry) removeMemberLocked(roomID string, userID int) {
	if rm, ok := r.rooms[roomID]; ok {
		delete(rm.members, userID)
		if len(rm.members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if ids, ok := r.userRooms[userID]; ok {
		delete(ids, roomID)
		if len(ids) == 0 {
			delete(r.userRooms, userID)
		}
	}
}
