// Package filter selects subsets of an issue snapshot.
package filter

import (
	"sort"
	"strings"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

// Predicate reports whether an issue should be kept.
type Predicate func(*model.Issue) bool

// Criteria describes a conjunctive filter. Zero-valued fields match
// everything; multi-valued fields match any listed value.
type Criteria struct {
	Status     []model.Status
	Priority   []model.Priority
	Category   string
	Query      string
	OpenOnly   bool
	ReporterID string
}

// IsZero reports whether the criteria match every issue.
func (c Criteria) IsZero() bool {
	return len(c.Status) == 0 && len(c.Priority) == 0 && c.Category == "" &&
		strings.TrimSpace(c.Query) == "" && !c.OpenOnly && c.ReporterID == ""
}

// Predicate compiles the criteria into a single predicate.
func (c Criteria) Predicate() Predicate {
	var preds []Predicate

	if statusSet := ToStringSet(statusStrings(c.Status)); statusSet != nil {
		preds = append(preds, func(i *model.Issue) bool {
			_, ok := statusSet[string(i.Status)]
			return ok
		})
	}
	if prioritySet := ToStringSet(priorityStrings(c.Priority)); prioritySet != nil {
		preds = append(preds, func(i *model.Issue) bool {
			_, ok := prioritySet[string(i.Priority)]
			return ok
		})
	}
	if c.Category != "" {
		category := c.Category
		preds = append(preds, func(i *model.Issue) bool {
			return strings.EqualFold(i.Category, category)
		})
	}
	if c.OpenOnly {
		preds = append(preds, func(i *model.Issue) bool { return i.IsOpen() })
	}
	if c.ReporterID != "" {
		reporter := c.ReporterID
		preds = append(preds, func(i *model.Issue) bool { return i.Reporter.ID == reporter })
	}
	if q := strings.ToLower(strings.TrimSpace(c.Query)); q != "" {
		preds = append(preds, func(i *model.Issue) bool {
			return strings.Contains(Haystack(i), q)
		})
	}

	return All(preds...)
}

// Haystack returns the lower-cased text searched by free-text queries.
func Haystack(i *model.Issue) string {
	return strings.ToLower(strings.Join([]string{
		i.Title, i.Description, i.Category, i.Address, i.Reporter.Name,
	}, " "))
}

// All combines predicates conjunctively. With no arguments it matches
// everything.
func All(preds ...Predicate) Predicate {
	return func(i *model.Issue) bool {
		for _, p := range preds {
			if p != nil && !p(i) {
				return false
			}
		}
		return true
	}
}

// Apply returns the issues matching pred, preserving input order.
func Apply(issues []*model.Issue, pred Predicate) []*model.Issue {
	out := make([]*model.Issue, 0, len(issues))
	for _, i := range issues {
		if pred == nil || pred(i) {
			out = append(out, i)
		}
	}
	return out
}

// Categories returns the distinct non-empty categories present, sorted.
// Categories differing only in case are one category, spelled as first seen.
func Categories(issues []*model.Issue) []string {
	spelling := categorySpellings(issues)
	out := make([]string, 0, len(spelling))
	for _, name := range spelling {
		if name != "" {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return strings.ToLower(out[a]) < strings.ToLower(out[b])
	})
	return out
}

// categorySpellings maps each folded category to its first-seen spelling.
func categorySpellings(issues []*model.Issue) map[string]string {
	spelling := make(map[string]string)
	for _, i := range issues {
		key := strings.ToLower(i.Category)
		if _, ok := spelling[key]; !ok {
			spelling[key] = i.Category
		}
	}
	return spelling
}

// CountByStatus tallies issues per status.
func CountByStatus(issues []*model.Issue) map[model.Status]int {
	counts := make(map[model.Status]int)
	for _, i := range issues {
		counts[i.Status]++
	}
	return counts
}

// CountByPriority tallies issues per priority.
func CountByPriority(issues []*model.Issue) map[model.Priority]int {
	counts := make(map[model.Priority]int)
	for _, i := range issues {
		counts[i.Priority]++
	}
	return counts
}

// CountByCategory tallies issues per category, keyed by the spelling
// Categories reports. Uncategorized issues count under the empty string.
func CountByCategory(issues []*model.Issue) map[string]int {
	spelling := categorySpellings(issues)
	counts := make(map[string]int)
	for _, i := range issues {
		counts[spelling[strings.ToLower(i.Category)]]++
	}
	return counts
}

// ToStringSet converts a slice of strings to a set for O(1) membership checks.
func ToStringSet(ss []string) map[string]struct{} {
	if len(ss) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}
	return set
}

func statusStrings(ss []model.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(ps []model.Priority) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
