package ledger

import "time"

// Status is the single course status label derived from a learner's facts.
type Status string

const (
	StatusNotStarted      Status = "not_started"
	StatusInProgress      Status = "in_progress"
	StatusCourseCompleted Status = "course_completed"
	StatusCompletedUnpaid Status = "completed_unpaid"
	StatusCompletedPaid   Status = "completed_paid"
	StatusDMVSubmitted    Status = "dmv_submitted"
)

// Statuses lists every label in ascending rank.
var Statuses = []Status{
	StatusNotStarted,
	StatusInProgress,
	StatusCourseCompleted,
	StatusCompletedUnpaid,
	StatusCompletedPaid,
	StatusDMVSubmitted,
}

// Rank returns the position of s in the total order, or -1 for an unknown label.
func (s Status) Rank() int {
	for i, v := range Statuses {
		if v == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Rank() >= 0 }

// Facts is the read-side view of one course status record. Every field is
// write-once: timestamps are never cleared and ExamPassed never flips back.
type Facts struct {
	Exists         bool
	CompletedAt    *time.Time
	ExamPassed     bool
	PaidAt         *time.Time
	DMVSubmittedAt *time.Time
}

type statusRule struct {
	holds  func(Facts) bool
	status Status
}

// statusRules is evaluated top to bottom and the last rule that holds wins.
// Order matters: it encodes the precedence of the six labels.
var statusRules = []statusRule{
	{func(f Facts) bool { return true }, StatusInProgress},
	{func(f Facts) bool { return f.CompletedAt != nil }, StatusCourseCompleted},
	{func(f Facts) bool { return f.ExamPassed }, StatusCompletedUnpaid},
	{func(f Facts) bool { return f.ExamPassed && f.PaidAt != nil }, StatusCompletedPaid},
	{func(f Facts) bool { return f.DMVSubmittedAt != nil }, StatusDMVSubmitted},
}

// DeriveStatus reduces the facts to one label. It is total: combinations that
// should not happen (submitted but unpaid, say) still land on the highest rule
// that holds.
func DeriveStatus(f Facts) Status {
	status := StatusNotStarted
	if !f.Exists {
		return status
	}
	for _, rule := range statusRules {
		if rule.holds(f) {
			status = rule.status
		}
	}
	return status
}
