package app

import (
	"slices"
	"time"

	"github.com/evanschultz/kanflow/internal/domain"
)

// DailySnapshot holds the items active and completed on one calendar date.
// Items completed on a date are also counted as active on that date.
type DailySnapshot struct {
	Date           time.Time
	ActiveItems    domain.ItemSet
	CompletedItems domain.ItemSet
}

// flowAction marks whether a flow event starts or stops an item.
type flowAction int

const (
	flowStart flowAction = iota
	flowStop
)

// flowEvent is one start or stop in the global replay.
type flowEvent struct {
	at     time.Time
	action flowAction
	item   *domain.WorkItem
}

// ReconstructDaily replays every start and stop in time order and returns one snapshot per date in dateRange.
// Items that never started are left out. Dates with no events inherit the previous date's
// active items minus its completions.
func ReconstructDaily(items []*domain.WorkItem, dateRange domain.DateRange, policy domain.CycleTimePolicy) []DailySnapshot {
	events := make([]flowEvent, 0, len(items)*2)
	for _, item := range items {
		started := policy.StartedTime(item)
		if started == nil {
			continue
		}
		events = append(events, flowEvent{at: *started, action: flowStart, item: item})
		if stopped := policy.StoppedTime(item); stopped != nil {
			events = append(events, flowEvent{at: *stopped, action: flowStop, item: item})
		}
	}
	slices.SortStableFunc(events, func(a, b flowEvent) int {
		return a.at.Compare(b.at)
	})

	var (
		recorded  = map[time.Time]DailySnapshot{}
		active    = domain.ItemSet{}
		completed = domain.ItemSet{}
		pending   *time.Time
		// seed is the last closed-off date before the range opens.
		seed *DailySnapshot
	)
	closeOff := func(date time.Time) {
		snapshot := DailySnapshot{
			Date:           date,
			CompletedItems: completed,
			ActiveItems:    active.Union(completed),
		}
		switch {
		case dateRange.Contains(date):
			recorded[date] = snapshot
		case date.Before(dateRange.Start):
			seed = &snapshot
		}
	}
	for _, event := range events {
		date := domain.DateOf(event.at)
		if pending != nil && !pending.Equal(date) {
			closeOff(*pending)
			completed = domain.ItemSet{}
		}
		pending = &date
		switch event.action {
		case flowStart:
			active.Add(event.item)
		case flowStop:
			active.Remove(event.item)
			completed.Add(event.item)
		}
	}
	if pending != nil {
		closeOff(*pending)
	}

	dates := dateRange.Dates()
	out := make([]DailySnapshot, 0, len(dates))
	previous := seed
	for _, date := range dates {
		snapshot, ok := recorded[date]
		if !ok {
			snapshot = DailySnapshot{
				Date:           date,
				ActiveItems:    domain.ItemSet{},
				CompletedItems: domain.ItemSet{},
			}
			if previous != nil {
				snapshot.ActiveItems = previous.ActiveItems.Minus(previous.CompletedItems)
			}
		}
		out = append(out, snapshot)
		previous = &out[len(out)-1]
	}
	return out
}
