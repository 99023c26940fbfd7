package app

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kanflow/internal/domain"
)

// Rule names accepted for start and stop predicates.
const (
	RuleCreated                        = "created"
	RuleFirstTimeInStatus              = "first_time_in_status"
	RuleFirstTimeNotInStatus           = "first_time_not_in_status"
	RuleStillInStatus                  = "still_in_status"
	RuleFirstTimeInStatusCategory      = "first_time_in_status_category"
	RuleStillInStatusCategory          = "still_in_status_category"
	RuleFirstStatusChangeAfterCreation = "first_status_change_after_creation"
	RuleFirstTimeResolved              = "first_time_resolved"
)

// RuleSpec names one predicate rule and its arguments.
type RuleSpec struct {
	Rule       string
	Statuses   []string
	Categories []string
}

// PolicySpec pairs the start and stop rules.
type PolicySpec struct {
	Start RuleSpec
	Stop  RuleSpec
}

// ruleBuilder turns rule arguments into a predicate.
type ruleBuilder func(spec RuleSpec, catalog *domain.StatusCatalog) (domain.TimePredicate, error)

// ruleBuilders stores every supported rule.
var ruleBuilders = map[string]ruleBuilder{
	RuleCreated: func(RuleSpec, *domain.StatusCatalog) (domain.TimePredicate, error) {
		return func(item *domain.WorkItem) *time.Time {
			created := item.CreatedAt
			return &created
		}, nil
	},
	RuleFirstTimeInStatus: withStatuses(func(statuses []string) domain.TimePredicate {
		return func(item *domain.WorkItem) *time.Time { return item.FirstTimeInStatus(statuses...) }
	}),
	RuleFirstTimeNotInStatus: withStatuses(func(statuses []string) domain.TimePredicate {
		return func(item *domain.WorkItem) *time.Time { return item.FirstTimeNotInStatus(statuses...) }
	}),
	RuleStillInStatus: withStatuses(func(statuses []string) domain.TimePredicate {
		return func(item *domain.WorkItem) *time.Time { return item.StillInStatus(statuses...) }
	}),
	RuleFirstTimeInStatusCategory: withCategories(func(catalog *domain.StatusCatalog, categories []string) domain.TimePredicate {
		return func(item *domain.WorkItem) *time.Time { return item.FirstTimeInStatusCategory(catalog, categories...) }
	}),
	RuleStillInStatusCategory: withCategories(func(catalog *domain.StatusCatalog, categories []string) domain.TimePredicate {
		return func(item *domain.WorkItem) *time.Time { return item.StillInStatusCategory(catalog, categories...) }
	}),
	RuleFirstStatusChangeAfterCreation: func(RuleSpec, *domain.StatusCatalog) (domain.TimePredicate, error) {
		return func(item *domain.WorkItem) *time.Time { return item.FirstStatusChangeAfterCreation() }, nil
	},
	RuleFirstTimeResolved: func(RuleSpec, *domain.StatusCatalog) (domain.TimePredicate, error) {
		return func(item *domain.WorkItem) *time.Time { return item.FirstTimeResolved() }, nil
	},
}

// KnownRules returns every supported rule name in sorted order.
func KnownRules() []string {
	out := make([]string, 0, len(ruleBuilders))
	for name := range ruleBuilders {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// BuildPredicate resolves a rule name into a predicate, failing on unknown names or missing arguments.
func BuildPredicate(spec RuleSpec, catalog *domain.StatusCatalog) (domain.TimePredicate, error) {
	name := strings.TrimSpace(strings.ToLower(spec.Rule))
	build, ok := ruleBuilders[name]
	if !ok {
		return nil, fmt.Errorf("%w %q; known rules: %s", ErrUnknownRule, spec.Rule, strings.Join(KnownRules(), ", "))
	}
	return build(spec, catalog)
}

// BuildPolicy resolves both rules of a policy.
func BuildPolicy(spec PolicySpec, catalog *domain.StatusCatalog) (domain.CycleTimePolicy, error) {
	start, err := BuildPredicate(spec.Start, catalog)
	if err != nil {
		return domain.CycleTimePolicy{}, fmt.Errorf("start rule: %w", err)
	}
	stop, err := BuildPredicate(spec.Stop, catalog)
	if err != nil {
		return domain.CycleTimePolicy{}, fmt.Errorf("stop rule: %w", err)
	}
	return domain.CycleTimePolicy{Start: start, Stop: stop}, nil
}

// ValidatePolicySpec checks rule names and arguments without a status catalog.
func ValidatePolicySpec(spec PolicySpec) error {
	_, err := BuildPolicy(spec, nil)
	return err
}

func withStatuses(fn func([]string) domain.TimePredicate) ruleBuilder {
	return func(spec RuleSpec, _ *domain.StatusCatalog) (domain.TimePredicate, error) {
		statuses := normalizeNames(spec.Statuses)
		if len(statuses) == 0 {
			return nil, fmt.Errorf("rule %q: %w", spec.Rule, ErrRuleStatusesRequired)
		}
		return fn(statuses), nil
	}
}

func withCategories(fn func(*domain.StatusCatalog, []string) domain.TimePredicate) ruleBuilder {
	return func(spec RuleSpec, catalog *domain.StatusCatalog) (domain.TimePredicate, error) {
		categories := normalizeNames(spec.Categories)
		if len(categories) == 0 {
			return nil, fmt.Errorf("rule %q: %w", spec.Rule, ErrRuleCategoriesRequired)
		}
		return fn(catalog, categories), nil
	}
}

// normalizeNames trims and deduplicates names while keeping order.
func normalizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		name := strings.TrimSpace(raw)
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
