package ledger

import "math"

// DefaultCourseRequiredSeconds is the study time a learner must accrue before
// the exam unlocks (6 hours).
const DefaultCourseRequiredSeconds = 6 * 60 * 60

// ClampSeconds adds increment to current without passing required.
// Negative inputs count as zero. The result never drops below current, so a
// requirement that shrank after time was credited does not take time away.
func ClampSeconds(current, increment, required int) int {
	if current < 0 {
		current = 0
	}
	if increment < 0 {
		increment = 0
	}
	if required < 0 {
		required = 0
	}
	next := current + increment
	if next > required {
		next = required
	}
	if next < current {
		return current
	}
	return next
}

// CourseSummary is the roll-up of a learner's effective seconds for one course.
type CourseSummary struct {
	TotalEffectiveSeconds int  `json:"total_effective_seconds"`
	RequiredSeconds       int  `json:"required_seconds"`
	EligibleForExam       bool `json:"eligible_for_exam"`
}

// Summarize sums per-module effective seconds and compares against threshold.
func Summarize(moduleSeconds []int, threshold int) CourseSummary {
	total := 0
	for _, s := range moduleSeconds {
		if s > 0 {
			total += s
		}
	}
	return CourseSummary{
		TotalEffectiveSeconds: total,
		RequiredSeconds:       threshold,
		EligibleForExam:       total >= threshold,
	}
}

// ProgressPercent is the UI completion figure. Modules are the unit, not seconds.
func ProgressPercent(completedModules, totalModules int) int {
	if totalModules <= 0 || completedModules <= 0 {
		return 0
	}
	if completedModules >= totalModules {
		return 100
	}
	return int(math.Round(float64(completedModules) / float64(totalModules) * 100))
}
