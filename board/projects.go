package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"storyboard-api/autosave"
	"storyboard-api/domain"
	"storyboard-api/storage"
)

var (
	// ErrNotFound is returned for projects that do not exist or belong to
	// another user.
	ErrNotFound = errors.New("project not found")
	// ErrDefaultCards marks a project that was created without its default
	// cards.
	ErrDefaultCards = errors.New("project created without default cards")
	ErrInvalidField = errors.New("field is not editable")
	ErrInvalidRatio = errors.New("unsupported ratio")
)

// ProjectStore is the remote side of the project service.
type ProjectStore interface {
	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	CreateProject(ctx context.Context, p domain.Project) (domain.Project, error)
	UpdateProject(ctx context.Context, id string, patch map[string]any) error
	DeleteProject(ctx context.Context, id string) error
	InsertCards(ctx context.Context, cards []domain.Card) ([]domain.Card, error)
	EnqueueCleanup(ctx context.Context, projectID string) error
}

// Projects implements the project level intents.
type Projects struct {
	store    ProjectStore
	sessions *Registry
	sync     *autosave.FieldSync
	logger   *log.Logger
}

// NewProjects returns a Projects service. Title and description edits are
// auto-saved with opts.
func NewProjects(store ProjectStore, sessions *Registry, logger *log.Logger, opts ...autosave.Option) *Projects {
	return &Projects{
		store:    store,
		sessions: sessions,
		sync:     autosave.NewFieldSync("projects", autosave.WriterFunc(store.UpdateProject), logger, opts...),
		logger:   logger,
	}
}

// List returns the projects of userID whose title contains search, ignoring
// case. An empty search matches every project.
func (p *Projects) List(ctx context.Context, userID, search string) ([]domain.Project, error) {
	projects, err := p.store.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return projects, nil
	}
	matched := make([]domain.Project, 0, len(projects))
	for _, pr := range projects {
		if strings.Contains(strings.ToLower(pr.Title), search) {
			matched = append(matched, pr)
		}
	}
	return matched, nil
}

// Get returns project id when it belongs to userID.
func (p *Projects) Get(ctx context.Context, userID, id string) (domain.Project, error) {
	pr, err := p.store.GetProject(ctx, id)
	if err != nil {
		var re *storage.RemoteError
		if errors.As(err, &re) && re.NotFound() {
			return domain.Project{}, ErrNotFound
		}
		return domain.Project{}, err
	}
	if pr.UserID != userID {
		return domain.Project{}, ErrNotFound
	}
	return pr, nil
}

// Owns reports whether project id belongs to userID.
func (p *Projects) Owns(ctx context.Context, userID, id string) (bool, error) {
	_, err := p.Get(ctx, userID, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create inserts a project with the default title and description, then its
// default cards. The two writes are independent: when the cards fail the
// created project is returned together with ErrDefaultCards.
func (p *Projects) Create(ctx context.Context, userID string) (domain.Project, error) {
	pr, err := p.store.CreateProject(ctx, domain.NewProject(userID))
	if err != nil {
		return domain.Project{}, err
	}
	if _, err := p.store.InsertCards(ctx, domain.DefaultCards(pr.ID)); err != nil {
		return pr, fmt.Errorf("%w: %w", ErrDefaultCards, err)
	}
	return pr, nil
}

// Delete removes a project. Pending edits of the project and of its open
// session are dropped first; its cards are removed by the cleanup worker.
// A failed enqueue is logged and leaves the cards orphaned.
func (p *Projects) Delete(ctx context.Context, userID, id string) error {
	if _, err := p.Get(ctx, userID, id); err != nil {
		return err
	}
	p.sync.Cancel(id)
	p.sessions.Close(id)
	if err := p.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	if err := p.store.EnqueueCleanup(ctx, id); err != nil {
		p.logger.WithField("project_id", id).WithError(err).Error("enqueue card cleanup failed")
	}
	return nil
}

// EditField schedules the auto-save of a title or description edit.
func (p *Projects) EditField(ctx context.Context, userID, id, field, value string) error {
	if !domain.EditableProjectField(field) {
		return ErrInvalidField
	}
	if _, err := p.Get(ctx, userID, id); err != nil {
		return err
	}
	p.sync.Schedule(id, field, value)
	return nil
}

// SetRatio stores the card ratio of a project.
func (p *Projects) SetRatio(ctx context.Context, userID, id string, ratio domain.Ratio) error {
	if !ratio.Valid() {
		return ErrInvalidRatio
	}
	if _, err := p.Get(ctx, userID, id); err != nil {
		return err
	}
	return p.store.UpdateProject(ctx, id, map[string]any{domain.FieldRatio: string(ratio)})
}

// Close writes pending project edits and stops auto-save.
func (p *Projects) Close() {
	p.sync.FlushAll()
	p.sync.Close()
}
