package domain

import "time"

// TimePredicate derives an instant from an item's changelog. It must not mutate the item.
type TimePredicate func(item *WorkItem) *time.Time

// CycleTimePolicy decides when an item started and stopped.
type CycleTimePolicy struct {
	Start TimePredicate
	Stop  TimePredicate
}

// StartedTime returns when the item started, or nil.
func (p CycleTimePolicy) StartedTime(item *WorkItem) *time.Time {
	if p.Start == nil || item == nil {
		return nil
	}
	return p.Start(item)
}

// StoppedTime returns when the item stopped, or nil.
func (p CycleTimePolicy) StoppedTime(item *WorkItem) *time.Time {
	if p.Stop == nil || item == nil {
		return nil
	}
	return p.Stop(item)
}

// CycleTimeDays counts days inclusively, so a same-day start and stop is 1 day.
func (p CycleTimePolicy) CycleTimeDays(item *WorkItem) *int {
	started := p.StartedTime(item)
	stopped := p.StoppedTime(item)
	if started == nil || stopped == nil {
		return nil
	}
	days := DaysBetween(*started, *stopped) + 1
	return &days
}

// AgeDays counts days inclusively from start to asOf.
func (p CycleTimePolicy) AgeDays(item *WorkItem, asOf time.Time) *int {
	started := p.StartedTime(item)
	if started == nil {
		return nil
	}
	days := DaysBetween(*started, asOf) + 1
	return &days
}

// InProgress reports whether the item has started and not stopped.
func (p CycleTimePolicy) InProgress(item *WorkItem) bool {
	return p.StartedTime(item) != nil && p.StoppedTime(item) == nil
}

// Done reports whether the item has stopped.
func (p CycleTimePolicy) Done(item *WorkItem) bool {
	return p.StoppedTime(item) != nil
}

// ActiveOn reports whether the item was started and not yet stopped at the end of date.
func (p CycleTimePolicy) ActiveOn(item *WorkItem, date time.Time) bool {
	started := p.StartedTime(item)
	if started == nil || DateOf(*started).After(DateOf(date)) {
		return false
	}
	stopped := p.StoppedTime(item)
	return stopped == nil || DateOf(*stopped).After(DateOf(date))
}
