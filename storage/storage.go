package storage

import (
	"context"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"storyboard-api/domain"
)

// Storage provides typed access to the projects and cards tables and to the
// cleanup queue.
type Storage struct {
	projects     *Collection
	cards        *Collection
	cleanupQueue queueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, projectsTable, cardsTable, cleanupQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				// Remote writes are single attempt; callers log and move on.
				MaxRetries: -1,
				TryTimeout: time.Second * 30,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, cleanupQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return newStorage(svc.NewClient(projectsTable), svc.NewClient(cardsTable), cq), nil
}

func newStorage(projects, cards tableClient, queue queueClient) *Storage {
	return &Storage{
		projects:     newCollection("projects", projects, projectsSchema),
		cards:        newCollection("cards", cards, cardsSchema),
		cleanupQueue: queue,
	}
}

// Projects exposes the raw projects collection.
func (s *Storage) Projects() *Collection { return s.projects }

// Cards exposes the raw cards collection.
func (s *Storage) Cards() *Collection { return s.cards }

// ListProjects retrieves all projects owned by userID.
func (s *Storage) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	recs, err := s.projects.Select(ctx, Eq(domain.FieldUserID, userID))
	if err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(recs))
	for _, r := range recs {
		projects = append(projects, projectFromRecord(r))
	}
	return projects, nil
}

// GetProject looks a project up by id.
func (s *Storage) GetProject(ctx context.Context, id string) (domain.Project, error) {
	recs, err := s.projects.Select(ctx, Eq(domain.FieldID, id))
	if err != nil {
		return domain.Project{}, err
	}
	if len(recs) == 0 {
		return domain.Project{}, &RemoteError{Collection: s.projects.name, Op: "select", StatusCode: 404, Err: ErrNotFound}
	}
	return projectFromRecord(recs[0]), nil
}

// CreateProject inserts p and returns it with its assigned id.
func (s *Storage) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	recs, err := s.projects.Insert(ctx, []Record{projectRecord(p)})
	if err != nil {
		return domain.Project{}, err
	}
	return projectFromRecord(recs[0]), nil
}

// UpdateProject merges patch into the project with the given id.
func (s *Storage) UpdateProject(ctx context.Context, id string, patch map[string]any) error {
	return s.projects.Update(ctx, Eq(domain.FieldID, id), patch)
}

// DeleteProject removes the project row. Its cards are removed by the
// cleanup worker.
func (s *Storage) DeleteProject(ctx context.Context, id string) error {
	return s.projects.Delete(ctx, Eq(domain.FieldID, id))
}

// ListCards returns the cards of a project ordered by sort order.
func (s *Storage) ListCards(ctx context.Context, projectID string) ([]domain.Card, error) {
	recs, err := s.cards.Select(ctx, Eq(domain.FieldProjectID, projectID))
	if err != nil {
		return nil, err
	}
	cards := make([]domain.Card, 0, len(recs))
	for _, r := range recs {
		cards = append(cards, cardFromRecord(r))
	}
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].SortOrder != cards[j].SortOrder {
			return cards[i].SortOrder < cards[j].SortOrder
		}
		return cards[i].ID < cards[j].ID
	})
	return cards, nil
}

// InsertCards stores cards and returns them with their assigned ids.
func (s *Storage) InsertCards(ctx context.Context, cards []domain.Card) ([]domain.Card, error) {
	recs := make([]Record, len(cards))
	for i, c := range cards {
		recs[i] = cardRecord(c)
	}
	stored, err := s.cards.Insert(ctx, recs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Card, len(stored))
	for i, r := range stored {
		out[i] = cardFromRecord(r)
	}
	return out, nil
}

// UpdateCard merges patch into the card with the given id.
func (s *Storage) UpdateCard(ctx context.Context, id string, patch map[string]any) error {
	return s.cards.Update(ctx, Eq(domain.FieldID, id), patch)
}

// DeleteCard removes a single card of a project. Cards of other projects
// are never matched.
func (s *Storage) DeleteCard(ctx context.Context, projectID, id string) error {
	return s.cards.DeleteKey(ctx, projectID, id)
}

// DeleteProjectCards removes every card of a project.
func (s *Storage) DeleteProjectCards(ctx context.Context, projectID string) error {
	return s.cards.Delete(ctx, Eq(domain.FieldProjectID, projectID))
}

// EnqueueCleanup schedules removal of the cards of a deleted project.
func (s *Storage) EnqueueCleanup(ctx context.Context, projectID string) error {
	data, err := sonic.Marshal(cleanupMessage{ProjectID: projectID})
	if err != nil {
		return err
	}
	if _, err := s.cleanupQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
		return remoteErr("cleanup", "enqueue", err)
	}
	return nil
}

func projectRecord(p domain.Project) Record {
	return Record{
		domain.FieldUserID:      p.UserID,
		domain.FieldTitle:       p.Title,
		domain.FieldDescription: p.Description,
		domain.FieldRatio:       string(p.Ratio),
	}
}

func projectFromRecord(r Record) domain.Project {
	return domain.Project{
		ID:          stringField(r, domain.FieldID),
		UserID:      stringField(r, domain.FieldUserID),
		Title:       stringField(r, domain.FieldTitle),
		Description: stringField(r, domain.FieldDescription),
		Ratio:       domain.Ratio(stringField(r, domain.FieldRatio)),
	}
}

func cardRecord(c domain.Card) Record {
	return Record{
		domain.FieldProjectID: c.ProjectID,
		domain.FieldText:      c.Text,
		domain.FieldImageURL:  c.ImageURL,
		domain.FieldSortOrder: c.SortOrder,
	}
}

func cardFromRecord(r Record) domain.Card {
	c := domain.Card{
		ID:        stringField(r, domain.FieldID),
		ProjectID: stringField(r, domain.FieldProjectID),
		Text:      stringField(r, domain.FieldText),
	}
	if url, ok := nullableString(r[domain.FieldImageURL]).(string); ok && url != "" {
		c.ImageURL = &url
	}
	c.SortOrder, _ = toInt(r[domain.FieldSortOrder])
	return c
}

func stringField(r Record, field string) string {
	s, _ := r[field].(string)
	return s
}
