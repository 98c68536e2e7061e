package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventKind tags a push-channel event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Event is a change notification from the push channel. Issue is set for
// created and updated events; IssueID is set for every kind.
type Event struct {
	Kind    EventKind
	IssueID string
	Issue   *Issue
}

// ErrMalformedEvent is returned for payloads that cannot be applied.
var ErrMalformedEvent = errors.New("malformed event")

type eventJSON struct {
	Type    string          `json:"type"`
	Issue   json.RawMessage `json:"issue"`
	Report  json.RawMessage `json:"report"`
	IssueID string          `json:"issueId"`
	ID      string          `json:"id"`
}

// ParseEvent decodes a push-channel frame. The payload may be carried under
// "issue" or "report"; deletions may name the id directly or via the payload.
func ParseEvent(data []byte) (Event, error) {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	payload := j.Issue
	if isEmptyJSON(payload) {
		payload = j.Report
	}

	kind := EventKind(strings.ToLower(strings.TrimSpace(j.Type)))
	switch kind {
	case EventCreated, EventUpdated:
		if isEmptyJSON(payload) {
			return Event{}, fmt.Errorf("%w: %s event without payload", ErrMalformedEvent, kind)
		}
		var issue Issue
		if err := json.Unmarshal(payload, &issue); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if err := issue.Validate(); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return Event{Kind: kind, IssueID: issue.ID, Issue: &issue}, nil

	case EventDeleted:
		id := j.IssueID
		if id == "" {
			id = j.ID
		}
		if id == "" && !isEmptyJSON(payload) {
			var ref struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(payload, &ref); err == nil {
				id = ref.ID
			}
		}
		if strings.TrimSpace(id) == "" {
			return Event{}, fmt.Errorf("%w: deleted event without id", ErrMalformedEvent)
		}
		return Event{Kind: kind, IssueID: id}, nil

	case "":
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, j.Type)
	}
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
