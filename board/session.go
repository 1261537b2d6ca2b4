package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"storyboard-api/autosave"
	"storyboard-api/domain"
)

// placeholderPrefix marks ids assigned locally to cards whose insert has not
// been confirmed yet.
const placeholderPrefix = "pending-"

// CardStore is the remote side of an editing session.
type CardStore interface {
	ListCards(ctx context.Context, projectID string) ([]domain.Card, error)
	InsertCards(ctx context.Context, cards []domain.Card) ([]domain.Card, error)
	UpdateCard(ctx context.Context, id string, patch map[string]any) error
	DeleteCard(ctx context.Context, projectID, id string) error
}

// Session is the editing state of one open project: its card sequence and
// the pending writes of its cards.
type Session struct {
	projectID string
	store     *Store
	remote    CardStore
	sync      *autosave.FieldSync
	logger    *log.Logger
	now       func() time.Time
	done      chan struct{}

	mu       sync.Mutex
	aliases  map[string]string
	subs     map[chan struct{}]struct{}
	lastUsed time.Time
	closed   bool
}

func newSession(projectID string, cards []domain.Card, remote CardStore, logger *log.Logger, now func() time.Time, opts ...autosave.Option) *Session {
	s := &Session{
		projectID: projectID,
		store:     NewStore(cards),
		remote:    remote,
		logger:    logger,
		now:       now,
		done:      make(chan struct{}),
		aliases:   make(map[string]string),
		subs:      make(map[chan struct{}]struct{}),
		lastUsed:  now(),
	}
	s.sync = autosave.NewFieldSync("cards", autosave.WriterFunc(s.writeCard), logger, opts...)
	return s
}

func (s *Session) ProjectID() string { return s.projectID }

// Cards returns the current card sequence.
func (s *Session) Cards() []domain.Card {
	s.touch()
	return s.store.Cards()
}

// Len returns the number of cards.
func (s *Session) Len() int { return s.store.Len() }

// AddCard appends a placeholder card, inserts it remotely and swaps in the
// confirmed record. On failure the placeholder stays in place and the error
// is returned.
func (s *Session) AddCard(ctx context.Context) (domain.Card, error) {
	s.mu.Lock()
	next := 1
	for _, c := range s.store.Cards() {
		if c.SortOrder >= next {
			next = c.SortOrder + 1
		}
	}
	placeholder := domain.Card{
		ID:        placeholderPrefix + uuid.NewString(),
		ProjectID: s.projectID,
		Text:      domain.NewCardText,
		SortOrder: next,
	}
	s.store.Add(placeholder)
	s.lastUsed = s.now()
	s.mu.Unlock()
	s.notify()

	stored, err := s.remote.InsertCards(ctx, []domain.Card{{
		ProjectID: placeholder.ProjectID,
		Text:      placeholder.Text,
		SortOrder: placeholder.SortOrder,
	}})
	if err != nil {
		return placeholder, err
	}
	confirmed := stored[0]

	s.mu.Lock()
	s.aliases[placeholder.ID] = confirmed.ID
	s.mu.Unlock()

	current, ok := s.store.Get(placeholder.ID)
	if !ok {
		// Removed while the insert was in flight.
		if err := s.remote.DeleteCard(ctx, s.projectID, confirmed.ID); err != nil {
			s.logger.WithFields(log.Fields{"project_id": s.projectID, "id": confirmed.ID}).WithError(err).Error("delete of removed card failed")
		}
		return confirmed, nil
	}
	s.sync.Cancel(placeholder.ID)
	s.reconcile(confirmed, current)
	current.ID = confirmed.ID
	current.ProjectID = confirmed.ProjectID
	s.store.Replace(placeholder.ID, current)
	s.notify()
	return current, nil
}

// reconcile schedules the fields edited locally while the insert of stored
// was in flight.
func (s *Session) reconcile(stored, local domain.Card) {
	if local.Text != stored.Text {
		s.sync.Schedule(stored.ID, domain.FieldText, local.Text)
	}
	if local.ImageURL != nil {
		s.sync.Schedule(stored.ID, domain.FieldImageURL, *local.ImageURL)
	}
	if local.SortOrder != stored.SortOrder {
		s.sync.Schedule(stored.ID, domain.FieldSortOrder, local.SortOrder)
	}
}

// RemoveCard drops the card locally, cancels its pending writes and deletes
// it remotely. Removing a card the session does not hold does nothing.
func (s *Session) RemoveCard(ctx context.Context, id string) error {
	s.touch()
	if !s.store.Remove(id) {
		return nil
	}
	s.notify()
	s.sync.Cancel(id)

	target, confirmed := s.resolve(id)
	if !confirmed {
		// AddCard deletes the record once the insert is confirmed.
		return nil
	}
	if target != id {
		s.sync.Cancel(target)
	}
	return s.remote.DeleteCard(ctx, s.projectID, target)
}

// EditText updates the text of a card and schedules its auto-save. It
// reports false when the card is absent.
func (s *Session) EditText(id, text string) bool {
	s.touch()
	if !s.store.UpdateField(id, domain.FieldText, text) {
		return false
	}
	s.sync.Schedule(id, domain.FieldText, text)
	s.notify()
	return true
}

// SetImage assigns url to a card, or clears the image when url is nil, and
// writes it immediately.
func (s *Session) SetImage(ctx context.Context, id string, url *string) (bool, error) {
	s.touch()
	var value any
	if url != nil {
		value = *url
	}
	if !s.store.UpdateField(id, domain.FieldImageURL, value) {
		return false, nil
	}
	s.sync.CancelField(id, domain.FieldImageURL)
	s.notify()

	target, confirmed := s.resolve(id)
	if !confirmed {
		// Written by AddCard once the insert is confirmed.
		return true, nil
	}
	return true, s.remote.UpdateCard(ctx, target, map[string]any{domain.FieldImageURL: value})
}

// DragEnd moves the active card onto the position of the over card,
// renumbers the sequence and schedules the sort order of every card that
// moved. It reports false when nothing changed.
func (s *Session) DragEnd(activeID, overID string) bool {
	s.touch()
	if !s.store.DragEnd(activeID, overID) {
		return false
	}
	for _, c := range s.store.Renumber() {
		s.sync.Schedule(c.ID, domain.FieldSortOrder, c.SortOrder)
	}
	s.notify()
	return true
}

// Flush writes every pending field now.
func (s *Session) Flush() int {
	return s.sync.FlushAll()
}

// Pending returns the number of unsaved fields.
func (s *Session) Pending() int {
	return s.sync.Pending()
}

// Subscribe returns a channel signalled after every mutation. Signals are
// coalesced; receivers re-read Cards.
func (s *Session) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.lastUsed = s.now()
	s.mu.Unlock()
	return ch
}

func (s *Session) Unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.lastUsed = s.now()
	s.mu.Unlock()
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close drops pending writes and releases subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[chan struct{}]struct{})
	close(s.done)
	s.mu.Unlock()
	s.sync.Close()
}

func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) == 0 && now.Sub(s.lastUsed) >= ttl
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// resolve maps a placeholder id to its confirmed id. The boolean is false
// for placeholders whose insert is still unconfirmed.
func (s *Session) resolve(id string) (string, bool) {
	if !strings.HasPrefix(id, placeholderPrefix) {
		return id, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.aliases[id]
	return target, ok
}

func (s *Session) writeCard(ctx context.Context, id string, patch map[string]any) error {
	target, confirmed := s.resolve(id)
	if !confirmed {
		return nil
	}
	return s.remote.UpdateCard(ctx, target, patch)
}
