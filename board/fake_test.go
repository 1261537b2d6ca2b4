package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"storyboard-api/domain"
	"storyboard-api/storage"
)

type cardUpdate struct {
	ID    string
	Patch map[string]any
}

// memoryStore is an in-memory ProjectStore and CardStore.
type memoryStore struct {
	mu       sync.Mutex
	projects map[string]domain.Project
	cards    map[string]domain.Card
	updates  []cardUpdate
	deleted  []string
	cleanups []string
	nextID   int

	insertErr error
	updateErr error
	deleteErr  error
	listErr    error
	cleanupErr error
	// insertGate blocks InsertCards until closed when set.
	insertGate chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		projects: make(map[string]domain.Project),
		cards:    make(map[string]domain.Card),
	}
}

func (m *memoryStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%d", prefix, m.nextID)
}

func (m *memoryStore) seedCards(projectID string, texts ...string) []domain.Card {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Card, len(texts))
	for i, text := range texts {
		c := domain.Card{ID: text, ProjectID: projectID, Text: text, SortOrder: i + 1}
		m.cards[c.ID] = c
		out[i] = c
	}
	return out
}

func (m *memoryStore) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Project
	for _, p := range m.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, &storage.RemoteError{Collection: "projects", Op: "select", StatusCode: 404, Err: storage.ErrNotFound}
	}
	return p, nil
}

func (m *memoryStore) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id("p")
	m.projects[p.ID] = p
	return p, nil
}

func (m *memoryStore) UpdateProject(ctx context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	p, ok := m.projects[id]
	if !ok {
		return nil
	}
	for field, v := range patch {
		s, _ := v.(string)
		switch field {
		case domain.FieldTitle:
			p.Title = s
		case domain.FieldDescription:
			p.Description = s
		case domain.FieldRatio:
			p.Ratio = domain.Ratio(s)
		}
	}
	m.projects[id] = p
	return nil
}

func (m *memoryStore) DeleteProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.projects, id)
	return nil
}

func (m *memoryStore) EnqueueCleanup(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cleanupErr != nil {
		return m.cleanupErr
	}
	m.cleanups = append(m.cleanups, projectID)
	return nil
}

func (m *memoryStore) ListCards(ctx context.Context, projectID string) ([]domain.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Card
	for _, c := range m.cards {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *memoryStore) InsertCards(ctx context.Context, cards []domain.Card) ([]domain.Card, error) {
	if m.insertGate != nil {
		<-m.insertGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	out := make([]domain.Card, len(cards))
	for i, c := range cards {
		c.ID = m.id("c")
		m.cards[c.ID] = c
		out[i] = c
	}
	return out, nil
}

func (m *memoryStore) UpdateCard(ctx context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, cardUpdate{ID: id, Patch: patch})
	if m.updateErr != nil {
		return m.updateErr
	}
	c, ok := m.cards[id]
	if !ok {
		return nil
	}
	for field, v := range patch {
		if updated, ok := c.WithField(field, v); ok {
			c = updated
		}
	}
	m.cards[id] = c
	return nil
}

func (m *memoryStore) DeleteCard(ctx context.Context, projectID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if c, ok := m.cards[id]; ok && c.ProjectID == projectID {
		delete(m.cards, id)
	}
	return nil
}

func (m *memoryStore) cardUpdates() []cardUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cardUpdate(nil), m.updates...)
}

func (m *memoryStore) deletedCards() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *memoryStore) projectCards(projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.cards {
		if c.ProjectID == projectID {
			n++
		}
	}
	return n
}

var errRemote = errors.New("remote unavailable")
