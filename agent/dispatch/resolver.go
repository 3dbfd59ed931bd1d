package dispatch

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

// MissingPolicy decides what happens when a dependent intent shows up in a
// turn without any of its prerequisites.
type MissingPolicy string

const (
	// PolicyDrop promotes the intent to the independent set with a warning.
	PolicyDrop MissingPolicy = "drop"
	// PolicyClarify rejects the plan so the coordinator can ask the user
	// for the missing context.
	PolicyClarify MissingPolicy = "clarify"
)

// dependencyTable lists, per intent, the intents that can supply its
// context when present in the same turn. A complaint filed alongside a
// booking action inherits that action's booking metadata.
var dependencyTable = map[contractx.Intent][]contractx.Intent{
	contractx.IntentComplaint: {
		contractx.IntentBookingStatus,
		contractx.IntentCancellation,
		contractx.IntentBookingManagement,
	},
	contractx.IntentCancellation: {
		contractx.IntentBookingStatus,
	},
}

// Resolver partitions a turn's intents into a concurrent phase and an
// ordered dependent phase.
type Resolver struct {
	policy MissingPolicy
}

func NewResolver(policy MissingPolicy) *Resolver {
	if policy != PolicyClarify {
		policy = PolicyDrop
	}
	return &Resolver{policy: policy}
}

// Resolve builds the execution plan for one turn. With PolicyClarify a
// dependent intent whose prerequisites are all absent yields
// ErrDependencyMissing; with PolicyDrop it runs independently.
func (r *Resolver) Resolve(results []contractx.IntentResult) (contractx.ExecutionPlan, error) {
	var plan contractx.ExecutionPlan
	if len(results) == 0 {
		return plan, nil
	}

	present := make(map[contractx.Intent]bool, len(results))
	for _, res := range results {
		present[res.Intent] = true
	}

	var pending []contractx.DependentIntent
	for _, res := range results {
		prereqs := dependencyTable[res.Intent]
		if len(prereqs) == 0 {
			plan.Independent = append(plan.Independent, res)
			continue
		}

		var met []contractx.Intent
		for _, p := range prereqs {
			if p != res.Intent && present[p] {
				met = append(met, p)
			}
		}
		if len(met) == 0 {
			if r.policy == PolicyClarify {
				return contractx.ExecutionPlan{}, fmt.Errorf(
					"%w: %s needs one of [%s] in the same turn",
					contractx.ErrDependencyMissing, res.Intent, joinIntents(prereqs))
			}
			log.Warn().
				Str("intent", string(res.Intent)).
				Msg("prerequisite absent from turn, treating intent as independent")
			plan.Independent = append(plan.Independent, res)
			continue
		}
		pending = append(pending, contractx.DependentIntent{Result: res, DependsOn: met})
	}

	ordered, err := orderDependents(plan.Independent, pending)
	if err != nil {
		return contractx.ExecutionPlan{}, err
	}
	plan.Dependent = ordered
	return plan, nil
}

// orderDependents sorts the dependent set so every prerequisite resolves to
// the independent phase or an earlier dependent step.
func orderDependents(
	independent []contractx.IntentResult,
	pending []contractx.DependentIntent,
) ([]contractx.DependentIntent, error) {
	resolved := make(map[contractx.Intent]bool, len(independent)+len(pending))
	for _, res := range independent {
		resolved[res.Intent] = true
	}

	ordered := make([]contractx.DependentIntent, 0, len(pending))
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, d := range pending {
			if anyResolved(resolved, d.DependsOn) {
				ordered = append(ordered, d)
				resolved[d.Result.Intent] = true
				progressed = true
				continue
			}
			rest = append(rest, d)
		}
		pending = rest
		if !progressed {
			return nil, fmt.Errorf("%w: circular or unsatisfiable dependency among [%s]",
				contractx.ErrDependencyMissing, joinDependents(pending))
		}
	}
	return ordered, nil
}

func anyResolved(resolved map[contractx.Intent]bool, deps []contractx.Intent) bool {
	for _, d := range deps {
		if resolved[d] {
			return true
		}
	}
	return false
}

func joinIntents(intents []contractx.Intent) string {
	parts := make([]string, len(intents))
	for i, in := range intents {
		parts[i] = string(in)
	}
	return strings.Join(parts, ", ")
}

func joinDependents(deps []contractx.DependentIntent) string {
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = string(d.Result.Intent)
	}
	return strings.Join(parts, ", ")
}
