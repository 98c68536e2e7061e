package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Comment is an append-only note on an issue. Comments are never edited or
// deleted once the server has accepted them.
type Comment struct {
	ID        string
	IssueID   string
	Body      string
	Author    string
	CreatedAt time.Time
}

// AuthorOrAnonymous returns the author name, falling back to "anonymous"
// when the field is empty.
func (c Comment) AuthorOrAnonymous() string {
	if c.Author == "" {
		return "anonymous"
	}
	return c.Author
}

// commentJSON is the JSON wire format for Comment. The remote service calls
// the body "text" and may nest the author as an object.
type commentJSON struct {
	ID            string          `json:"id"`
	LegacyID      string          `json:"comment_id,omitempty"`
	IssueID       string          `json:"issueId,omitempty"`
	LegacyIssueID string          `json:"issue_id,omitempty"`
	Text          string          `json:"text"`
	Author        json.RawMessage `json:"author,omitempty"`
	CreatedAt     string          `json:"createdAt"`
	LegacyCreated string          `json:"created_at,omitempty"`
}

// MarshalJSON implements custom JSON serialization for Comment.
func (c Comment) MarshalJSON() ([]byte, error) {
	author, err := json.Marshal(c.AuthorOrAnonymous())
	if err != nil {
		return nil, err
	}
	return json.Marshal(commentJSON{
		ID:        c.ID,
		IssueID:   c.IssueID,
		Text:      c.Body,
		Author:    author,
		CreatedAt: formatTime(c.CreatedAt),
	})
}

// UnmarshalJSON implements custom JSON deserialization for Comment.
func (c *Comment) UnmarshalJSON(data []byte) error {
	var j commentJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	c.ID = firstNonEmpty(j.ID, j.LegacyID)
	c.IssueID = firstNonEmpty(j.IssueID, j.LegacyIssueID)
	c.Body = j.Text
	c.Author = ""

	if len(j.Author) > 0 && string(j.Author) != "null" {
		var name string
		if err := json.Unmarshal(j.Author, &name); err != nil {
			var ref reporterJSON
			if err := json.Unmarshal(j.Author, &ref); err != nil {
				return fmt.Errorf("parsing author: %w", err)
			}
			name = ref.Name
		}
		c.Author = name
	}

	createdAt, err := parseTime(firstNonEmpty(j.CreatedAt, j.LegacyCreated))
	if err != nil {
		return fmt.Errorf("parsing createdAt: %w", err)
	}
	c.CreatedAt = createdAt

	return nil
}
