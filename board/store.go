// Package board holds the in-memory state of open storyboards and the
// intents that mutate it ahead of the remote store.
package board

import (
	"sync"

	"storyboard-api/domain"
)

// Store is the ordered card sequence of one project. Mutations apply
// immediately and never fail; persistence is the caller's concern.
type Store struct {
	mu    sync.RWMutex
	cards []domain.Card
}

// NewStore returns a Store holding a copy of cards in the given order.
func NewStore(cards []domain.Card) *Store {
	return &Store{cards: append([]domain.Card(nil), cards...)}
}

// Add appends card.
func (s *Store) Add(card domain.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, card)
}

// Remove drops the card with id. Removing an absent id is a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false
	}
	next := make([]domain.Card, 0, len(s.cards)-1)
	next = append(next, s.cards[:i]...)
	s.cards = append(next, s.cards[i+1:]...)
	return true
}

// UpdateField replaces the card with id by a copy carrying the new value,
// keeping its position. It reports false when the card is absent or the
// value does not fit the field.
func (s *Store) UpdateField(id, field string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false
	}
	updated, ok := s.cards[i].WithField(field, value)
	if !ok {
		return false
	}
	next := append([]domain.Card(nil), s.cards...)
	next[i] = updated
	s.cards = next
	return true
}

// Reorder replaces the whole sequence. seq is expected to be a permutation
// of the current cards; it is not checked.
func (s *Store) Reorder(seq []domain.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append([]domain.Card(nil), seq...)
}

// Replace swaps the placeholder card for the record confirmed by the remote
// store, keeping its position.
func (s *Store) Replace(placeholderID string, confirmed domain.Card) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(placeholderID)
	if i < 0 {
		return false
	}
	next := append([]domain.Card(nil), s.cards...)
	next[i] = confirmed
	s.cards = next
	return true
}

// DragEnd moves the active card to the position of the over card. It is a
// no-op when the ids are equal or either is absent.
func (s *Store) DragEnd(activeID, overID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activeID == overID {
		return false
	}
	from, to := s.index(activeID), s.index(overID)
	if from < 0 || to < 0 {
		return false
	}
	s.cards = Move(s.cards, from, to)
	return true
}

// Renumber assigns sort orders 1..n in sequence order and returns the cards
// whose sort order changed.
func (s *Store) Renumber() []domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []domain.Card
	next := append([]domain.Card(nil), s.cards...)
	for i := range next {
		if next[i].SortOrder != i+1 {
			next[i].SortOrder = i + 1
			changed = append(changed, next[i])
		}
	}
	s.cards = next
	return changed
}

// Cards returns a snapshot of the sequence.
func (s *Store) Cards() []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Card(nil), s.cards...)
}

// Get returns the card with id.
func (s *Store) Get(id string) (domain.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index(id)
	if i < 0 {
		return domain.Card{}, false
	}
	return s.cards[i], true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cards)
}

// Index returns the position of id, or -1.
func (s *Store) Index(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index(id)
}

func (s *Store) index(id string) int {
	for i, c := range s.cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}
