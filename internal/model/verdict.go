package model

import (
	"errors"
	"strings"
)

// Verdict is the remote service's answer when a submission was not created.
type Verdict struct {
	IsDuplicate bool   `json:"is_duplicate"`
	Message     string `json:"message"`
	IssueID     string `json:"issue_id,omitempty"`
}

// ErrIncompleteVerdict is returned for a duplicate verdict that does not name
// the existing issue.
var ErrIncompleteVerdict = errors.New("duplicate verdict without issue_id")

// Validate checks the verdict is internally consistent.
func (v Verdict) Validate() error {
	if v.IsDuplicate && strings.TrimSpace(v.IssueID) == "" {
		return ErrIncompleteVerdict
	}
	return nil
}
