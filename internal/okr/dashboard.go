package okr

import (
	"fmt"
	"strconv"
)

// DefaultPlaceholderOwner is the owner name excluded from the team counter.
const DefaultPlaceholderOwner = "Alex"

// Summary holds the four dashboard counters.
type Summary struct {
	Total     int
	OnTrack   int
	Team      int
	Completed int
}

// Summarize derives the dashboard counters from the full objective list.
// Team counts objectives whose responsible is not the placeholder owner.
func Summarize(list []Objective, placeholderOwner string) Summary {
	s := Summary{Total: len(list)}
	for _, o := range list {
		switch o.Status {
		case StatusOnTrack:
			s.OnTrack++
		case StatusCompleted:
			s.Completed++
		}
		if o.Responsible != placeholderOwner {
			s.Team++
		}
	}
	return s
}

// Dashboard combines the fetched list with the current filter state.
type Dashboard struct {
	All     []Objective
	Visible []Objective
	Filters FilterState
	Summary Summary
}

// BuildDashboard filters list and summarizes it. Counters always reflect the
// full list, not the filtered subset.
func BuildDashboard(list []Objective, filters FilterState, placeholderOwner string) Dashboard {
	return Dashboard{
		All:     list,
		Visible: FilterObjectives(list, filters),
		Filters: filters,
		Summary: Summarize(list, placeholderOwner),
	}
}

// Card is the view model of a single objective on the dashboard.
type Card struct {
	Objective Objective
	Progress  int
	Expanded  bool
}

// NewCard builds a collapsed card for o.
func NewCard(o Objective) *Card {
	return &Card{Objective: o, Progress: ObjectiveProgress(o)}
}

// Toggle expands or collapses the key-result breakdown.
func (c *Card) Toggle() {
	c.Expanded = !c.Expanded
}

// CommentCount returns the number of comments attached to the objective.
func (c *Card) CommentCount() int {
	return len(c.Objective.Comments)
}

// Breakdown returns one line per key result: "title  current/target unit  (p%)".
// It is empty while the card is collapsed.
func (c *Card) Breakdown() []string {
	if !c.Expanded {
		return nil
	}
	lines := make([]string, len(c.Objective.KeyResults))
	for i, kr := range c.Objective.KeyResults {
		lines[i] = fmt.Sprintf("%s  %s/%s %s  (%d%%)",
			kr.Title, formatNumber(kr.CurrentValue), formatNumber(kr.Target), kr.Unit, kr.Progress())
	}
	return lines
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
