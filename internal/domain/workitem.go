package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// WorkItem represents one tracked item and its normalized changelog.
// Parent and subtask relations are stored as keys and resolved through an ItemLookup.
type WorkItem struct {
	Key         string
	Type        string
	Summary     string
	Priority    string
	CreatedAt   time.Time
	Changes     []ChangeEvent
	ParentKey   string
	SubtaskKeys []string
}

// ItemLookup resolves an item by key from a caller-owned collection.
type ItemLookup func(key string) (*WorkItem, bool)

// NewWorkItem normalizes a raw record into a work item with an ordered changelog.
// The first change is always a synthetic status event describing the creation.
func NewWorkItem(rec ItemRecord) (*WorkItem, error) {
	key := strings.TrimSpace(rec.Key)
	if key == "" {
		return nil, ErrInvalidKey
	}
	if rec.CreatedAt.IsZero() {
		return nil, ErrInvalidTimestamp
	}
	if rec.History == nil {
		return nil, &MissingChangelogError{Key: key}
	}

	changes := make([]ChangeEvent, 0, len(rec.History)+1)
	for _, batch := range rec.History {
		for _, fc := range batch.Changes {
			changes = append(changes, ChangeEvent{
				Time:       batch.Time,
				Field:      strings.TrimSpace(fc.Field),
				Value:      fc.NewValue,
				ValueID:    cloneInt(fc.NewID),
				OldValue:   cloneString(fc.OldValue),
				OldValueID: cloneInt(fc.OldID),
			})
		}
	}
	sortChanges(changes)

	creation := creationEvent(rec, changes)
	subtasks := make([]string, 0, len(rec.SubtaskKeys))
	for _, sk := range rec.SubtaskKeys {
		if sk = strings.TrimSpace(sk); sk != "" {
			subtasks = append(subtasks, sk)
		}
	}

	return &WorkItem{
		Key:         key,
		Type:        strings.TrimSpace(rec.Type),
		Summary:     strings.TrimSpace(rec.Summary),
		Priority:    strings.TrimSpace(rec.Priority),
		CreatedAt:   rec.CreatedAt,
		Changes:     append([]ChangeEvent{creation}, changes...),
		ParentKey:   strings.TrimSpace(rec.ParentKey),
		SubtaskKeys: subtasks,
	}, nil
}

// creationEvent synthesizes the status the item was created in.
func creationEvent(rec ItemRecord, sorted []ChangeEvent) ChangeEvent {
	at := rec.CreatedAt
	if len(sorted) > 0 && sorted[0].Time.Before(at) {
		at = sorted[0].Time
	}
	event := ChangeEvent{
		Time:      at,
		Field:     FieldStatus,
		Value:     CreatedSentinel,
		Synthetic: true,
	}
	for _, change := range sorted {
		if !change.IsStatus() {
			continue
		}
		if change.OldValue != nil {
			event.Value = *change.OldValue
			event.ValueID = cloneInt(change.OldValueID)
		}
		return event
	}
	if status := strings.TrimSpace(rec.Status); status != "" {
		event.Value = status
		event.ValueID = cloneInt(rec.StatusID)
	}
	return event
}

// sortChanges orders events by time; a resolution sharing its instant with a status change sorts after it.
func sortChanges(changes []ChangeEvent) {
	statusTimes := map[int64]struct{}{}
	for _, change := range changes {
		if change.IsStatus() {
			statusTimes[change.Time.UnixNano()] = struct{}{}
		}
	}
	rank := func(change ChangeEvent) int {
		if !change.IsResolution() {
			return 0
		}
		if _, ok := statusTimes[change.Time.UnixNano()]; ok {
			return 1
		}
		return 0
	}
	slices.SortStableFunc(changes, func(a, b ChangeEvent) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}
		return cmp.Compare(rank(a), rank(b))
	})
}

// StatusChanges returns the status events, creation included.
func (w *WorkItem) StatusChanges() []ChangeEvent {
	out := make([]ChangeEvent, 0, len(w.Changes))
	for _, change := range w.Changes {
		if change.IsStatus() {
			out = append(out, change)
		}
	}
	return out
}

// CurrentStatus returns the latest status event.
func (w *WorkItem) CurrentStatus() ChangeEvent {
	var current ChangeEvent
	for _, change := range w.Changes {
		if change.IsStatus() {
			current = change
		}
	}
	return current
}

// StatusAt returns the status in effect at instant t.
func (w *WorkItem) StatusAt(t time.Time) (ChangeEvent, bool) {
	var (
		current ChangeEvent
		found   bool
	)
	for _, change := range w.Changes {
		if change.Time.After(t) {
			break
		}
		if change.IsStatus() {
			current = change
			found = true
		}
	}
	return current, found
}

// FirstTimeInStatus returns when the item first entered any of names.
func (w *WorkItem) FirstTimeInStatus(names ...string) *time.Time {
	return w.firstStatusMatch(func(change ChangeEvent) bool {
		return slices.Contains(names, change.Value)
	})
}

// FirstTimeNotInStatus returns when the item first sat in a status outside names.
func (w *WorkItem) FirstTimeNotInStatus(names ...string) *time.Time {
	return w.firstStatusMatch(func(change ChangeEvent) bool {
		return !slices.Contains(names, change.Value)
	})
}

// StillInStatus returns the time of the latest contiguous entry into names, or nil if the
// item is not currently in one of them.
func (w *WorkItem) StillInStatus(names ...string) *time.Time {
	return w.stillMatching(func(change ChangeEvent) bool {
		return slices.Contains(names, change.Value)
	})
}

// FirstTimeInStatusCategory returns when the item first entered a status in any of categories.
func (w *WorkItem) FirstTimeInStatusCategory(catalog *StatusCatalog, categories ...string) *time.Time {
	return w.firstStatusMatch(categoryMatcher(catalog, categories))
}

// StillInStatusCategory behaves like StillInStatus using the status category.
func (w *WorkItem) StillInStatusCategory(catalog *StatusCatalog, categories ...string) *time.Time {
	return w.stillMatching(categoryMatcher(catalog, categories))
}

// FirstStatusChangeAfterCreation returns the first real status transition.
func (w *WorkItem) FirstStatusChangeAfterCreation() *time.Time {
	return w.firstStatusMatch(func(change ChangeEvent) bool {
		return !change.Synthetic
	})
}

// FirstTimeResolved returns when a resolution was first set.
func (w *WorkItem) FirstTimeResolved() *time.Time {
	for _, change := range w.Changes {
		if change.IsResolution() && strings.TrimSpace(change.Value) != "" {
			return timePtr(change.Time)
		}
	}
	return nil
}

// LastTimeEnteredStatus returns the latest transition into any of names.
func (w *WorkItem) LastTimeEnteredStatus(names ...string) *time.Time {
	var last *time.Time
	for _, change := range w.Changes {
		if change.IsStatus() && slices.Contains(names, change.Value) {
			last = timePtr(change.Time)
		}
	}
	return last
}

// LastActivity returns the time of the latest change at or before t.
func (w *WorkItem) LastActivity(t time.Time) *time.Time {
	var last *time.Time
	for _, change := range w.Changes {
		if change.Time.After(t) {
			break
		}
		last = timePtr(change.Time)
	}
	return last
}

// DiscardChangesBefore returns a copy without the real changes recorded before cutoff.
// The synthetic creation event is kept so the changelog stays anchored.
func (w *WorkItem) DiscardChangesBefore(cutoff time.Time) *WorkItem {
	kept := make([]ChangeEvent, 0, len(w.Changes))
	for _, change := range w.Changes {
		if !change.Synthetic && change.Time.Before(cutoff) {
			continue
		}
		kept = append(kept, change)
	}
	out := *w
	out.Changes = kept
	out.SubtaskKeys = slices.Clone(w.SubtaskKeys)
	return &out
}

func (w *WorkItem) firstStatusMatch(match func(ChangeEvent) bool) *time.Time {
	for _, change := range w.Changes {
		if change.IsStatus() && match(change) {
			return timePtr(change.Time)
		}
	}
	return nil
}

func (w *WorkItem) stillMatching(match func(ChangeEvent) bool) *time.Time {
	var entered *time.Time
	for _, change := range w.Changes {
		if !change.IsStatus() {
			continue
		}
		if !match(change) {
			entered = nil
			continue
		}
		if entered == nil {
			entered = timePtr(change.Time)
		}
	}
	return entered
}

func categoryMatcher(catalog *StatusCatalog, categories []string) func(ChangeEvent) bool {
	return func(change ChangeEvent) bool {
		category, ok := catalog.CategoryForEvent(change)
		return ok && slices.Contains(categories, category)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
