package api

import (
	"context"

	"storyboard-api/board"
	"storyboard-api/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

// ProjectService implements the project intents for handlers.
type ProjectService interface {
	List(ctx context.Context, userID, search string) ([]domain.Project, error)
	Get(ctx context.Context, userID, id string) (domain.Project, error)
	Create(ctx context.Context, userID string) (domain.Project, error)
	Delete(ctx context.Context, userID, id string) error
	EditField(ctx context.Context, userID, id, field, value string) error
	SetRatio(ctx context.Context, userID, id string, ratio domain.Ratio) error
}

// Sessions opens the editing session of a project.
type Sessions interface {
	Open(ctx context.Context, projectID string) (*board.Session, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper makes project creation safe to retry.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Complete stores the id created under key.
	Complete(ctx context.Context, userID, key, resultID string) error
	// Result returns the id stored by Complete.
	Result(ctx context.Context, userID, key string) (string, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, userID, key string) error
}

// PATCH /api/projects/:id and /api/projects/:id/cards/:cardId
type editFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// PUT /api/projects/:id/ratio
type ratioRequest struct {
	Ratio domain.Ratio `json:"ratio"`
}

// PUT /api/projects/:id/cards/:cardId/image; a null url clears the image.
type imageRequest struct {
	URL *string `json:"url"`
}

// POST /api/projects/:id/cards/reorder
type reorderRequest struct {
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId"`
}

type createProjectResponse struct {
	domain.Project
	Warning string `json:"warning,omitempty"`
}

type cardsResponse struct {
	Cards []domain.Card `json:"cards"`
}

type projectsResponse struct {
	Projects []domain.Project `json:"projects"`
}

type errorResponse struct {
	Error string `json:"error"`
}
