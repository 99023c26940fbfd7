package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidKey and related errors describe validation and configuration failures.
var (
	ErrInvalidKey                  = errors.New("invalid key")
	ErrInvalidName                 = errors.New("invalid name")
	ErrInvalidPosition             = errors.New("invalid position")
	ErrInvalidTimestamp            = errors.New("invalid timestamp")
	ErrMissingChangelog            = errors.New("missing changelog")
	ErrUnknownCategoryMapping      = errors.New("unknown status category mapping")
	ErrConflictingStatusCategory   = errors.New("conflicting status category")
	ErrAmbiguousBoardConfiguration = errors.New("ambiguous board configuration")
)

// MissingChangelogError reports an item whose change history was never retrieved.
type MissingChangelogError struct {
	Key string
}

// Error implements error.
func (e *MissingChangelogError) Error() string {
	return fmt.Sprintf("item %s has no changelog; it must be retrieved with its change history", e.Key)
}

// Is matches ErrMissingChangelog.
func (e *MissingChangelogError) Is(target error) bool {
	return target == ErrMissingChangelog
}

// UnknownCategoryMappingError lists statuses that have no category along with every known mapping.
type UnknownCategoryMappingError struct {
	Missing []string
	Known   []Status
}

// Error implements error.
func (e *UnknownCategoryMappingError) Error() string {
	var b strings.Builder
	missing := slices.Clone(e.Missing)
	slices.Sort(missing)
	fmt.Fprintf(&b, "no status category found for %s", quoteJoin(missing))
	if len(e.Known) == 0 {
		b.WriteString("; no statuses are known at all")
		return b.String()
	}
	b.WriteString("; known statuses:")
	for _, status := range e.Known {
		fmt.Fprintf(&b, " %q (id %d) => %q;", status.Name, status.ID, status.CategoryName)
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Is matches ErrUnknownCategoryMapping.
func (e *UnknownCategoryMappingError) Is(target error) bool {
	return target == ErrUnknownCategoryMapping
}

// AmbiguousBoardConfigurationError reports multiple candidate boards with no explicit selection.
type AmbiguousBoardConfigurationError struct {
	BoardIDs []int
}

// Error implements error.
func (e *AmbiguousBoardConfigurationError) Error() string {
	ids := make([]string, 0, len(e.BoardIDs))
	for _, id := range e.BoardIDs {
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("multiple boards found (%s); set board.id to pick one", strings.Join(ids, ", "))
}

// Is matches ErrAmbiguousBoardConfiguration.
func (e *AmbiguousBoardConfigurationError) Is(target error) bool {
	return target == ErrAmbiguousBoardConfiguration
}

func quoteJoin(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return strings.Join(quoted, ", ")
}
