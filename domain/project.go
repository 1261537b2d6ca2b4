package domain

const (
	DefaultProjectTitle       = "Untitled Project"
	DefaultProjectDescription = "Start writing your ideas here..."
	// DefaultCardCount cards are created together with every new project.
	DefaultCardCount = 6
)

// Ratio is the aspect ratio used to render the cards of a project.
type Ratio string

const (
	RatioUnset     Ratio = ""
	RatioLandscape Ratio = "16:9"
	RatioPortrait  Ratio = "9:16"
)

// Valid reports whether r is one of the supported ratios.
func (r Ratio) Valid() bool {
	return r == RatioLandscape || r == RatioPortrait
}

// Project groups the cards of one storyboard and belongs to a single user.
type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
	Ratio       Ratio  `json:"ratio,omitempty"`
}

// NewProject returns the record inserted when a user creates a project.
func NewProject(userID string) Project {
	return Project{
		Title:       DefaultProjectTitle,
		Description: DefaultProjectDescription,
		UserID:      userID,
	}
}

// DefaultCards returns the blank cards created with a new project, numbered
// from 1.
func DefaultCards(projectID string) []Card {
	cards := make([]Card, DefaultCardCount)
	for i := range cards {
		cards[i] = Card{ProjectID: projectID, SortOrder: i + 1}
	}
	return cards
}

// EditableProjectField reports whether field is auto-saved from the project
// list.
func EditableProjectField(field string) bool {
	return field == FieldTitle || field == FieldDescription
}
