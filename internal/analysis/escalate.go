// Package analysis runs the per-comment pipeline: embedding,
// classification with bounded retry, and the escalation decision.
package analysis

import "github.com/echohq/echo-agent/internal/types"

// escalationThreshold is the priority score at or above which any
// comment escalates regardless of category.
const escalationThreshold = 0.7

// ShouldEscalate decides whether a classified comment warrants an
// autonomous follow-up task. Pure function, no I/O.
func ShouldEscalate(priorityScore float64, category types.Category) bool {
	if priorityScore >= escalationThreshold {
		return true
	}
	return category == types.CategoryBug || category == types.CategoryFeatureRequest
}
