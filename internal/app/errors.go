package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound               = errors.New("not found")
	ErrNoBoard                = errors.New("no board configured")
	ErrUnknownRule            = errors.New("unknown policy rule")
	ErrRuleStatusesRequired   = errors.New("rule requires at least one status")
	ErrRuleCategoriesRequired = errors.New("rule requires at least one category")
	ErrInvalidSnapshot        = errors.New("invalid snapshot")
	ErrInvalidDateRange       = errors.New("invalid date range")
)
