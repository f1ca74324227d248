package models

// Roster is the fixed ordered set of recipient ids eligible to receive
// announcements. It is read-only from the scheduler's perspective.
type Roster []int64

// NewRoster builds the sequential roster 1..size.
func NewRoster(size int) Roster {
	if size < 0 {
		size = 0
	}
	roster := make(Roster, size)
	for i := range roster {
		roster[i] = int64(i + 1)
	}
	return roster
}

// RosterFromMembers builds a roster from an explicit ordered id list,
// dropping duplicates while preserving first-seen order.
func RosterFromMembers(members []int64) Roster {
	seen := make(map[int64]struct{}, len(members))
	roster := make(Roster, 0, len(members))
	for _, id := range members {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		roster = append(roster, id)
	}
	return roster
}
