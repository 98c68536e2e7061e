package model

import "time"

// Activity is a journal entry describing a change the client observed or made.
type Activity struct {
	ID        int       `json:"id"`
	IssueID   string    `json:"issue_id,omitempty"`
	Action    string    `json:"action"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity actions recorded in the journal.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionStale     = "stale"
	ActionMalformed = "malformed"
	ActionRepaired  = "repaired"
	ActionStatus    = "status"
	ActionComment   = "comment"
	ActionSubmitted = "submitted"
	ActionDuplicate = "duplicate"
	ActionPending   = "pending"
	ActionDiscarded = "discarded"
)

// Activity sources.
const (
	SourceStream = "stream"
	SourceRepair = "repair"
	SourceCLI    = "cli"
)
