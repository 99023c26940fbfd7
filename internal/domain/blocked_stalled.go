package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultStalledThresholdDays is the inactivity threshold used when none is configured.
const DefaultStalledThresholdDays = 5

// DefaultBlockedLinkText is the link phrase treated as blocking when none is configured.
const DefaultBlockedLinkText = "is blocked by"

// StateKind is the composite classification of an item on a date.
type StateKind string

// StateKind values.
const (
	StateBlocked StateKind = "BLOCKED"
	StateStalled StateKind = "STALLED"
	StateActive  StateKind = "ACTIVE"
)

// BlockedStalledSettings configures what counts as blocked or stalled.
type BlockedStalledSettings struct {
	BlockedStatuses      []string
	StalledStatuses      []string
	BlockedLinkTexts     []string
	FlaggedMeansBlocked  bool
	StalledThresholdDays int
}

// BlockedStalledState is the evaluated condition of one item at the end of one date.
type BlockedStalledState struct {
	Time              time.Time `json:"time"`
	Flagged           bool      `json:"flagged"`
	BlockingStatus    *string   `json:"blocking_status,omitempty"`
	BlockingIssueKeys []string  `json:"blocking_issue_keys,omitempty"`
	StalledStatus     *string   `json:"stalled_status,omitempty"`
	StalledDays       *int      `json:"stalled_days,omitempty"`
}

// Blocked reports whether any blocking condition holds.
func (s BlockedStalledState) Blocked() bool {
	return s.Flagged || s.BlockingStatus != nil || len(s.BlockingIssueKeys) > 0
}

// Stalled reports whether the item is stalled and not blocked.
func (s BlockedStalledState) Stalled() bool {
	return !s.Blocked() && (s.StalledStatus != nil || s.StalledDays != nil)
}

// Active reports whether the item is neither blocked nor stalled.
func (s BlockedStalledState) Active() bool {
	return !s.Blocked() && !s.Stalled()
}

// Kind returns the composite state; blocked wins over stalled.
func (s BlockedStalledState) Kind() StateKind {
	switch {
	case s.Blocked():
		return StateBlocked
	case s.Stalled():
		return StateStalled
	default:
		return StateActive
	}
}

// Reasons lists every blocking reason in priority order, or the single stalling reason.
func (s BlockedStalledState) Reasons() []string {
	reasons := []string{}
	if s.Blocked() {
		if s.Flagged {
			reasons = append(reasons, "Blocked by flag")
		}
		if s.BlockingStatus != nil {
			reasons = append(reasons, "Blocked by status: "+*s.BlockingStatus)
		}
		if len(s.BlockingIssueKeys) > 0 {
			reasons = append(reasons, "Blocked by issues: "+strings.Join(s.BlockingIssueKeys, ", "))
		}
		return reasons
	}
	switch {
	case s.StalledStatus != nil:
		reasons = append(reasons, "Stalled by status: "+*s.StalledStatus)
	case s.StalledDays != nil:
		reasons = append(reasons, fmt.Sprintf("Stalled by inactivity: %d days", *s.StalledDays))
	}
	return reasons
}

// BlockedStalledClassifier evaluates blocked and stalled state from changelogs.
type BlockedStalledClassifier struct {
	Settings BlockedStalledSettings
	Policy   CycleTimePolicy
	Lookup   ItemLookup
}

// Evaluate classifies item using every change up to the end of date.
// thresholdDays <= 0 falls back to the configured threshold.
func (c BlockedStalledClassifier) Evaluate(item *WorkItem, date time.Time, thresholdDays int) BlockedStalledState {
	end := DateOf(date)
	state := BlockedStalledState{Time: end}
	if thresholdDays <= 0 {
		thresholdDays = c.Settings.StalledThresholdDays
	}
	linkTexts := c.Settings.BlockedLinkTexts
	if len(linkTexts) == 0 {
		linkTexts = []string{DefaultBlockedLinkText}
	}

	var (
		flagged  bool
		status   *ChangeEvent
		blockers []string
	)
	for i := range item.Changes {
		change := item.Changes[i]
		if DateOf(change.Time).After(end) {
			break
		}
		switch {
		case change.IsFlagged():
			flagged = change.FlagSet()
		case change.IsStatus():
			status = &item.Changes[i]
		case change.IsLink():
			for _, phrase := range linkTexts {
				key, added, ok := change.LinkedKey(phrase)
				if !ok {
					continue
				}
				if added {
					if !slices.Contains(blockers, key) {
						blockers = append(blockers, key)
					}
				} else {
					blockers = slices.DeleteFunc(blockers, func(k string) bool { return k == key })
				}
				break
			}
		}
	}

	state.Flagged = flagged && c.Settings.FlaggedMeansBlocked
	if status != nil && slices.Contains(c.Settings.BlockedStatuses, status.Value) {
		name := status.Value
		state.BlockingStatus = &name
	}
	if len(blockers) > 0 {
		slices.SortFunc(blockers, CompareKeys)
		state.BlockingIssueKeys = blockers
	}
	if state.Blocked() {
		return state
	}

	if status != nil && slices.Contains(c.Settings.StalledStatuses, status.Value) {
		name := status.Value
		state.StalledStatus = &name
		return state
	}
	if thresholdDays <= 0 || !c.Policy.ActiveOn(item, end) {
		return state
	}
	last := c.lastActivity(item, end)
	if last == nil {
		return state
	}
	if days := DaysBetween(*last, end); days >= thresholdDays {
		state.StalledDays = &days
	}
	return state
}

// lastActivity returns the latest change on item or its subtasks at or before the end of date.
func (c BlockedStalledClassifier) lastActivity(item *WorkItem, date time.Time) *time.Time {
	var last *time.Time
	consider := func(w *WorkItem) {
		for _, change := range w.Changes {
			if DateOf(change.Time).After(date) {
				break
			}
			if last == nil || change.Time.After(*last) {
				t := change.Time
				last = &t
			}
		}
	}
	consider(item)
	if c.Lookup != nil {
		for _, key := range item.SubtaskKeys {
			if sub, ok := c.Lookup(key); ok {
				consider(sub)
			}
		}
	}
	return last
}
