package selection

import (
	"sync"

	"corsair/internal/domain"
)

// Set tracks which missions the user has staged for dispatch. Membership
// toggles by mission id: selecting an already-selected mission removes it.
// Insertion order is preserved for the remaining entries.
type Set struct {
	mu       sync.Mutex
	missions []domain.Mission
}

func NewSet() *Set {
	return &Set{}
}

// Toggle flips membership of m by id and reports whether it is now selected.
func (s *Set) Toggle(m domain.Mission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.missions {
		if cur.ID == m.ID {
			s.missions = append(s.missions[:i], s.missions[i+1:]...)
			return false
		}
	}
	s.missions = append(s.missions, m)
	return true
}

// Selected reports whether a mission with the given id is staged.
func (s *Set) Selected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.missions {
		if cur.ID == id {
			return true
		}
	}
	return false
}

// Missions returns the staged missions in insertion order.
func (s *Set) Missions() []domain.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Mission, len(s.missions))
	copy(out, s.missions)
	return out
}

// Len returns the number of staged missions.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.missions)
}

// Clear drops the whole selection, e.g. when the dispatch UI closes.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions = nil
}
