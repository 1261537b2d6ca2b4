package domain

// Field names shared by the HTTP payloads and the table columns.
const (
	FieldID          = "id"
	FieldUserID      = "user_id"
	FieldProjectID   = "project_id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldRatio       = "ratio"
	FieldText        = "text"
	FieldImageURL    = "image_url"
	FieldSortOrder   = "sort_order"
)

// NewCardText is the placeholder text of a card added from the canvas.
const NewCardText = "Text"

// Card is a single storyboard frame.
type Card struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Text      string  `json:"text"`
	ImageURL  *string `json:"image_url"`
	SortOrder int     `json:"sort_order"`
}

// WithField returns a copy of c with field set to value. The boolean is false
// when the field is unknown or the value has the wrong type; c is returned
// unchanged in that case.
func (c Card) WithField(field string, value any) (Card, bool) {
	switch field {
	case FieldText:
		s, ok := value.(string)
		if !ok {
			return c, false
		}
		c.Text = s
	case FieldImageURL:
		switch v := value.(type) {
		case nil:
			c.ImageURL = nil
		case string:
			u := v
			c.ImageURL = &u
		case *string:
			if v == nil {
				c.ImageURL = nil
				break
			}
			u := *v
			c.ImageURL = &u
		default:
			return c, false
		}
	case FieldSortOrder:
		n, ok := value.(int)
		if !ok {
			return c, false
		}
		c.SortOrder = n
	default:
		return c, false
	}
	return c, true
}

// EditableCardField reports whether clients may edit field directly.
func EditableCardField(field string) bool {
	return field == FieldText || field == FieldImageURL
}
