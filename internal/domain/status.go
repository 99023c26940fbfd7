package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Status is one workflow status and the category it belongs to.
type Status struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	CategoryName string `json:"category_name"`
	CategoryID   int    `json:"category_id"`
}

// StatusCatalog maps status names and ids to categories. It is read-only after construction.
type StatusCatalog struct {
	statuses   []Status
	byID       map[int]Status
	categories map[string]string
}

// NewStatusCatalog validates and indexes statuses.
// A name registered with two different categories is a configuration error.
func NewStatusCatalog(statuses []Status) (*StatusCatalog, error) {
	c := &StatusCatalog{
		statuses:   make([]Status, 0, len(statuses)),
		byID:       map[int]Status{},
		categories: map[string]string{},
	}
	for idx, status := range statuses {
		status.Name = strings.TrimSpace(status.Name)
		status.CategoryName = strings.TrimSpace(status.CategoryName)
		if status.Name == "" {
			return nil, fmt.Errorf("statuses[%d]: %w", idx, ErrInvalidName)
		}
		if status.CategoryName == "" {
			return nil, fmt.Errorf("statuses[%d] %q: category is required: %w", idx, status.Name, ErrInvalidName)
		}
		if existing, ok := c.categories[status.Name]; ok && existing != status.CategoryName {
			return nil, fmt.Errorf("status %q redefined as %q, was %q: %w", status.Name, status.CategoryName, existing, ErrConflictingStatusCategory)
		}
		if prev, ok := c.byID[status.ID]; ok {
			if prev.Name != status.Name || prev.CategoryName != status.CategoryName {
				return nil, fmt.Errorf("status id %d redefined as %q, was %q: %w", status.ID, status.Name, prev.Name, ErrConflictingStatusCategory)
			}
			continue
		}
		c.categories[status.Name] = status.CategoryName
		c.byID[status.ID] = status
		c.statuses = append(c.statuses, status)
	}
	slices.SortFunc(c.statuses, func(a, b Status) int {
		if n := cmp.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return c, nil
}

// Statuses returns every known status ordered by name.
func (c *StatusCatalog) Statuses() []Status {
	if c == nil {
		return nil
	}
	return slices.Clone(c.statuses)
}

// CategoryFor returns the category of a status name.
func (c *StatusCatalog) CategoryFor(name string) (string, error) {
	name = strings.TrimSpace(name)
	if c != nil {
		if category, ok := c.categories[name]; ok {
			return category, nil
		}
	}
	return "", &UnknownCategoryMappingError{Missing: []string{name}, Known: c.Statuses()}
}

// StatusByID returns the status registered under id.
func (c *StatusCatalog) StatusByID(id int) (Status, bool) {
	if c == nil {
		return Status{}, false
	}
	status, ok := c.byID[id]
	return status, ok
}

// IDsForName returns every status id registered under name.
func (c *StatusCatalog) IDsForName(name string) []int {
	if c == nil {
		return nil
	}
	out := []int{}
	for _, status := range c.statuses {
		if status.Name == name {
			out = append(out, status.ID)
		}
	}
	return out
}

// Resolve finds the status a status event points at, preferring the id.
func (c *StatusCatalog) Resolve(change ChangeEvent) (Status, bool) {
	if c == nil {
		return Status{}, false
	}
	if change.ValueID != nil {
		if status, ok := c.byID[*change.ValueID]; ok {
			return status, true
		}
	}
	if category, ok := c.categories[change.Value]; ok {
		ids := c.IDsForName(change.Value)
		status := Status{Name: change.Value, CategoryName: category}
		if len(ids) > 0 {
			status, _ = c.StatusByID(ids[0])
		}
		return status, true
	}
	return Status{}, false
}

// CategoryForEvent returns the category of the status a status event points at.
func (c *StatusCatalog) CategoryForEvent(change ChangeEvent) (string, bool) {
	status, ok := c.Resolve(change)
	if !ok {
		return "", false
	}
	return status.CategoryName, true
}

// Verify checks every status referenced by items and reports all unmapped names at once.
func (c *StatusCatalog) Verify(items []*WorkItem) error {
	missing := []string{}
	seen := map[string]struct{}{}
	for _, item := range items {
		for _, change := range item.StatusChanges() {
			if change.Value == CreatedSentinel {
				continue
			}
			if _, ok := c.Resolve(change); ok {
				continue
			}
			if _, dup := seen[change.Value]; dup {
				continue
			}
			seen[change.Value] = struct{}{}
			missing = append(missing, change.Value)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &UnknownCategoryMappingError{Missing: missing, Known: c.Statuses()}
}
