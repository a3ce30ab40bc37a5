package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Participant is a named member of a room. Username is unique per room and case-sensitive.
type Participant struct {
	ID       int64     `json:"-"`
	RoomID   uuid.UUID `json:"room_id"`
	Username string    `json:"username"`
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
	IsOnline bool      `json:"is_online"`
}

// SortRoster orders participants by JoinedAt ascending. The sort is stable so
// ties keep the order the gateway returned them in.
func SortRoster(ps []Participant) []Participant {
	out := make([]Participant, len(ps))
	copy(out, ps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// AdminOf returns the elected admin: the earliest joiner of the roster.
// It is recomputed from the roster every time and never stored.
func AdminOf(ps []Participant) (Participant, bool) {
	if len(ps) == 0 {
		return Participant{}, false
	}
	sorted := SortRoster(ps)
	return sorted[0], true
}

// IsAdmin reports whether username is the elected admin of the roster.
func IsAdmin(ps []Participant, username string) bool {
	admin, ok := AdminOf(ps)
	return ok && admin.Username == username
}

// CanKick is the kick authorization rule shared by clients and the gateway.
func CanKick(ps []Participant, requester, target string) bool {
	return requester != target && IsAdmin(ps, requester)
}

// Find returns the participant with the given username.
func Find(ps []Participant, username string) (Participant, bool) {
	for _, p := range ps {
		if p.Username == username {
			return p, true
		}
	}
	return Participant{}, false
}

// KickNotice is the system message appended when an admin removes someone.
func KickNotice(target, admin string) string {
	return target + " has been removed from the room by " + admin
}
