package app

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kanflow/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ProblemCategory classifies one data-quality finding.
type ProblemCategory string

// ProblemCategory values in reporting order.
const (
	ProblemCompletedWithoutStart              ProblemCategory = "completed-without-start"
	ProblemStatusChangeAfterDone              ProblemCategory = "status-change-after-done"
	ProblemBackwardsThroughStatusCategories   ProblemCategory = "backwards-through-status-categories"
	ProblemBackwardsThroughStatuses           ProblemCategory = "backwards-through-statuses"
	ProblemStatusNotOnBoard                   ProblemCategory = "status-not-on-board"
	ProblemCreatedInWrongStatus               ProblemCategory = "created-in-wrong-status"
	ProblemStoppedBeforeStarted               ProblemCategory = "stopped-before-started"
	ProblemUnstartedParentWithStartedSubtasks ProblemCategory = "unstarted-parent-with-started-subtasks"
	ProblemDiscardedData                      ProblemCategory = "discarded-data"
)

// problemCategories stores every category in reporting order.
var problemCategories = []ProblemCategory{
	ProblemCompletedWithoutStart,
	ProblemStatusChangeAfterDone,
	ProblemBackwardsThroughStatusCategories,
	ProblemBackwardsThroughStatuses,
	ProblemStatusNotOnBoard,
	ProblemCreatedInWrongStatus,
	ProblemStoppedBeforeStarted,
	ProblemUnstartedParentWithStartedSubtasks,
	ProblemDiscardedData,
}

// ProblemCategories returns every category in reporting order.
func ProblemCategories() []ProblemCategory {
	return slices.Clone(problemCategories)
}

// ParseProblemCategory validates a category name.
func ParseProblemCategory(raw string) (ProblemCategory, bool) {
	category := ProblemCategory(strings.TrimSpace(strings.ToLower(raw)))
	return category, slices.Contains(problemCategories, category)
}

// QualityProblem is one finding against one item.
type QualityProblem struct {
	ItemKey  string          `json:"item_key"`
	Category ProblemCategory `json:"category"`
	Detail   string          `json:"detail"`
}

// QualityEntry groups the findings for one item.
type QualityEntry struct {
	Item     *domain.WorkItem `json:"-"`
	Key      string           `json:"key"`
	Started  *time.Time       `json:"started,omitempty"`
	Stopped  *time.Time       `json:"stopped,omitempty"`
	Problems []QualityProblem `json:"problems"`
}

// DiscardRecord remembers the start and stop an item had before history was discarded.
type DiscardRecord struct {
	Cutoff        time.Time
	OriginalStart *time.Time
	OriginalStop  *time.Time
}

// QualityReport is the result of one scan, with entries in natural key order.
type QualityReport struct {
	Entries []QualityEntry `json:"entries"`
}

// Problems returns every finding in entry order.
func (r QualityReport) Problems() []QualityProblem {
	out := []QualityProblem{}
	for _, entry := range r.Entries {
		out = append(out, entry.Problems...)
	}
	return out
}

// ProblemsFor returns the findings of one category.
func (r QualityReport) ProblemsFor(category ProblemCategory) []QualityProblem {
	out := []QualityProblem{}
	for _, problem := range r.Problems() {
		if problem.Category == category {
			out = append(out, problem)
		}
	}
	return out
}

// CategoryCounts returns the number of findings per category that has any.
func (r QualityReport) CategoryCounts() map[ProblemCategory]int {
	out := map[ProblemCategory]int{}
	for _, problem := range r.Problems() {
		out[problem.Category]++
	}
	return out
}

// QualityScanner checks changelogs for consistency problems against a board.
type QualityScanner struct {
	Board    domain.Board
	Catalog  *domain.StatusCatalog
	Policy   domain.CycleTimePolicy
	Lookup   domain.ItemLookup
	Discards map[string]DiscardRecord
	Workers  int
}

// Scan runs every check on every item. Findings never abort the scan.
func (s QualityScanner) Scan(items []*domain.WorkItem) QualityReport {
	entries := make([]QualityEntry, len(items))
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for idx, item := range items {
		g.Go(func() error {
			entries[idx] = s.scanItem(item)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(entries, func(a, b QualityEntry) int {
		return domain.CompareKeys(a.Key, b.Key)
	})
	return QualityReport{Entries: entries}
}

// scanItem runs all checks for one item.
func (s QualityScanner) scanItem(item *domain.WorkItem) QualityEntry {
	entry := QualityEntry{
		Item:     item,
		Key:      item.Key,
		Started:  s.Policy.StartedTime(item),
		Stopped:  s.Policy.StoppedTime(item),
		Problems: []QualityProblem{},
	}
	report := func(category ProblemCategory, format string, args ...any) {
		entry.Problems = append(entry.Problems, QualityProblem{
			ItemKey:  item.Key,
			Category: category,
			Detail:   fmt.Sprintf(format, args...),
		})
	}
	s.checkCompletedWithoutStart(item, entry, report)
	s.checkStatusChangeAfterDone(item, entry, report)
	s.checkBackwardMovement(item, report)
	s.checkCreatedInWrongStatus(item, report)
	s.checkStoppedBeforeStarted(entry, report)
	s.checkUnstartedParent(item, entry, report)
	s.checkDiscardedData(item, entry, report)
	return entry
}

// reporter appends one finding to the current entry.
type reporter func(category ProblemCategory, format string, args ...any)

func (s QualityScanner) checkCompletedWithoutStart(item *domain.WorkItem, entry QualityEntry, report reporter) {
	if entry.Stopped == nil || entry.Started != nil {
		return
	}
	trail := []string{}
	for _, change := range item.StatusChanges() {
		if change.Time.Equal(*entry.Stopped) {
			trail = append(trail, fmt.Sprintf("status changed from %q to %q", change.OldValueOr(""), change.Value))
		}
	}
	if len(trail) == 0 {
		trail = append(trail, "no status changes found")
	}
	report(ProblemCompletedWithoutStart, "Stopped on %s without a start: %s", formatDate(*entry.Stopped), strings.Join(trail, "; "))
}

func (s QualityScanner) checkStatusChangeAfterDone(item *domain.WorkItem, entry QualityEntry, report reporter) {
	if entry.Stopped == nil {
		return
	}
	for _, change := range item.StatusChanges() {
		if !change.Time.After(*entry.Stopped) {
			continue
		}
		report(ProblemStatusChangeAfterDone, "Status changed from %q to %q on %s, after the item was done on %s",
			change.OldValueOr(""), change.Value, formatDate(change.Time), formatDate(*entry.Stopped))
	}
}

func (s QualityScanner) checkBackwardMovement(item *domain.WorkItem, report reporter) {
	var (
		previous      domain.Status
		previousIndex = -1
		offBoard      = map[string]struct{}{}
	)
	for _, change := range item.StatusChanges() {
		if change.Value == domain.CreatedSentinel {
			continue
		}
		status, ok := s.Catalog.Resolve(change)
		if !ok {
			if _, seen := offBoard[change.Value]; !seen {
				offBoard[change.Value] = struct{}{}
				report(ProblemStatusNotOnBoard, "Status %q%s cannot be found at all; it may have been deleted", change.Value, describeID(change.ValueID))
			}
			continue
		}
		index, statusID, onBoard := s.columnFor(change, status)
		if !onBoard {
			if s.Board.IsBacklogStatus(statusID) {
				continue
			}
			if _, seen := offBoard[change.Value]; !seen {
				offBoard[change.Value] = struct{}{}
				report(ProblemStatusNotOnBoard, "Status %q (id %d) is not visible on board %q", change.Value, statusID, s.Board.Name)
			}
			continue
		}
		if previousIndex >= 0 && index < previousIndex {
			if previous.CategoryName == status.CategoryName {
				report(ProblemBackwardsThroughStatuses, "Moved backwards from %q to %q on %s",
					previous.Name, status.Name, formatDate(change.Time))
			} else {
				report(ProblemBackwardsThroughStatusCategories, "Moved backwards from %q to %q on %s, crossing from category %q to %q",
					previous.Name, status.Name, formatDate(change.Time), previous.CategoryName, status.CategoryName)
			}
		}
		previous = status
		previousIndex = index
	}
}

// columnFor finds the board column of a resolved status, trying every id registered under its name
// when the event did not carry one.
func (s QualityScanner) columnFor(change domain.ChangeEvent, status domain.Status) (int, int, bool) {
	ids := []int{status.ID}
	if change.ValueID == nil {
		ids = append(ids, s.Catalog.IDsForName(status.Name)...)
	}
	for _, id := range ids {
		if index, ok := s.Board.ColumnIndexFor(id); ok {
			return index, id, true
		}
	}
	return 0, status.ID, false
}

// checkCreatedInWrongStatus only judges creation statuses the catalog resolves.
// An unresolvable creation status is reported once as status-not-on-board by checkBackwardMovement.
func (s QualityScanner) checkCreatedInWrongStatus(item *domain.WorkItem, report reporter) {
	if len(item.Changes) == 0 {
		return
	}
	creation := item.Changes[0]
	if !creation.Synthetic || creation.Value == domain.CreatedSentinel {
		return
	}
	status, ok := s.Catalog.Resolve(creation)
	if !ok {
		return
	}
	ids := []int{status.ID}
	if creation.ValueID == nil {
		ids = append(ids, s.Catalog.IDsForName(status.Name)...)
	}
	for _, id := range ids {
		if s.Board.IsEntryStatus(id) {
			return
		}
	}
	report(ProblemCreatedInWrongStatus, "Created in %q (id %d) on %s, which is neither the first column nor a backlog status",
		creation.Value, status.ID, formatDate(creation.Time))
}

func (s QualityScanner) checkStoppedBeforeStarted(entry QualityEntry, report reporter) {
	if entry.Started == nil || entry.Stopped == nil || !entry.Stopped.Before(*entry.Started) {
		return
	}
	report(ProblemStoppedBeforeStarted, "Stopped at %s before it started at %s",
		entry.Stopped.Format(time.RFC3339), entry.Started.Format(time.RFC3339))
}

func (s QualityScanner) checkUnstartedParent(item *domain.WorkItem, entry QualityEntry, report reporter) {
	if entry.Started != nil || len(item.SubtaskKeys) == 0 || s.Lookup == nil {
		return
	}
	keys := slices.Clone(item.SubtaskKeys)
	slices.SortFunc(keys, domain.CompareKeys)
	for _, key := range keys {
		subtask, ok := s.Lookup(key)
		if !ok {
			continue
		}
		started := s.Policy.StartedTime(subtask)
		if started == nil {
			continue
		}
		report(ProblemUnstartedParentWithStartedSubtasks, "Subtask %s started on %s and is in %q while the parent has not started",
			subtask.Key, formatDate(*started), subtask.CurrentStatus().Value)
	}
}

func (s QualityScanner) checkDiscardedData(item *domain.WorkItem, entry QualityEntry, report reporter) {
	record, ok := s.Discards[item.Key]
	if !ok || record.OriginalStart == nil {
		return
	}
	newStart := record.Cutoff
	if entry.Started != nil {
		newStart = *entry.Started
	}
	days := domain.DaysBetween(*record.OriginalStart, newStart)
	if days <= 0 {
		return
	}
	stopped := "not stopped"
	if record.OriginalStop != nil {
		stopped = formatDate(*record.OriginalStop)
	}
	report(ProblemDiscardedData, "Started %s, stopped %s; history before %s was discarded, dropping %d days",
		formatDate(*record.OriginalStart), stopped, formatDate(record.Cutoff), days)
}

func describeID(id *int) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf(" (id %d)", *id)
}

func formatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}
