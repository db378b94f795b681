package okr

import "strings"

// Period selects which quarter the dashboard shows. It is tracked and counted
// as an active filter but the API exposes no date range, so it never narrows
// the list.
type Period string

const (
	PeriodCurrent  Period = "current"
	PeriodPrevious Period = "previous"
	PeriodAll      Period = "all"
)

// Periods lists the selectable periods in display order.
var Periods = []Period{PeriodCurrent, PeriodPrevious, PeriodAll}

// Label returns the human-readable label for the period.
func (p Period) Label() string {
	switch p {
	case PeriodCurrent:
		return "This quarter"
	case PeriodPrevious:
		return "Previous quarter"
	case PeriodAll:
		return "All periods"
	default:
		return string(p)
	}
}

// FilterState is the combined state of the dashboard filter bar.
type FilterState struct {
	Search   string
	Statuses []Status
	Owner    string
	Period   Period
}

// DefaultFilters returns the filter bar's initial state.
func DefaultFilters() FilterState {
	return FilterState{Period: PeriodCurrent}
}

// ToggleStatus adds s to the selection, or removes it if already selected.
func (f *FilterState) ToggleStatus(s Status) {
	for i, cur := range f.Statuses {
		if cur == s {
			f.Statuses = append(f.Statuses[:i:i], f.Statuses[i+1:]...)
			return
		}
	}
	f.Statuses = append(f.Statuses, s)
}

// TogglePeriod flips between the current quarter and all periods.
func (f *FilterState) TogglePeriod() {
	if f.Period == PeriodCurrent || f.Period == "" {
		f.Period = PeriodAll
		return
	}
	f.Period = PeriodCurrent
}

// Clear resets every filter to its default.
func (f *FilterState) Clear() {
	*f = DefaultFilters()
}

// ActiveCount is the number of selected statuses plus one for a non-default
// owner filter and one for a non-default period.
func (f FilterState) ActiveCount() int {
	n := len(f.Statuses)
	if f.Owner != "" {
		n++
	}
	if f.Period != "" && f.Period != PeriodCurrent {
		n++
	}
	return n
}

// HasActive reports whether any filter, including search, is set.
func (f FilterState) HasActive() bool {
	return f.Search != "" || f.ActiveCount() > 0
}

// Matches reports whether o passes every filter. Each clause is independent,
// so clause order does not change the result.
func (f FilterState) Matches(o Objective) bool {
	return f.matchesSearch(o) && f.matchesStatus(o) && f.matchesOwner(o)
}

func (f FilterState) matchesSearch(o Objective) bool {
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return containsFold(o.Title, q) || containsFold(o.Description, q) || containsFold(o.Responsible, q)
}

func (f FilterState) matchesStatus(o Objective) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if o.Status == s {
			return true
		}
	}
	return false
}

func (f FilterState) matchesOwner(o Objective) bool {
	if f.Owner == "" {
		return true
	}
	return containsFold(o.Responsible, strings.ToLower(f.Owner))
}

// containsFold reports whether s contains the already-lowercased substring q.
func containsFold(s, q string) bool {
	return strings.Contains(strings.ToLower(s), q)
}

// FilterObjectives returns the objectives matching f in their original order.
func FilterObjectives(list []Objective, f FilterState) []Objective {
	out := make([]Objective, 0, len(list))
	for _, o := range list {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}
