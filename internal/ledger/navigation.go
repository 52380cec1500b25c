package ledger

// NoModuleCompleted is the max completed index before any module is done.
const NoModuleCompleted = -1

// CanNavigate reports whether a learner may jump to targetIndex. Modules unlock
// strictly in sequence: everything up to one past maxCompletedIndex, the end
// of the unbroken run of completed modules.
func CanNavigate(targetIndex, maxCompletedIndex int) bool {
	if targetIndex < 0 {
		return false
	}
	if maxCompletedIndex < NoModuleCompleted {
		maxCompletedIndex = NoModuleCompleted
	}
	return targetIndex <= maxCompletedIndex+1
}

// MaxCompletedIndex returns the last index of the unbroken run of completed
// modules starting at 0, or NoModuleCompleted when module 0 is not done. A
// completed module after a gap does not advance it.
func MaxCompletedIndex(completed []int) int {
	done := make(map[int]bool, len(completed))
	for _, idx := range completed {
		done[idx] = true
	}
	max := NoModuleCompleted
	for done[max+1] {
		max++
	}
	return max
}

// ExamUnlocked reports whether the run of completed modules reaches the final
// module of a course with totalModules modules.
func ExamUnlocked(totalModules, maxCompletedIndex int) bool {
	return totalModules > 0 && maxCompletedIndex >= totalModules-1
}

type SegmentKind string

const (
	SegmentModule  SegmentKind = "module"
	SegmentExam    SegmentKind = "exam"
	SegmentPayment SegmentKind = "payment"
)

// Segment is one stop on the learner's timeline.
type Segment struct {
	Kind      SegmentKind `json:"kind"`
	Index     int         `json:"index"`
	Unlocked  bool        `json:"unlocked"`
	Completed bool        `json:"completed"`
	Current   bool        `json:"current"`
}

// TimelineInput carries the learner's progress. CompletedIndexes lists the
// modules whose own progress row is complete.
type TimelineInput struct {
	TotalModules       int
	MaxCompletedIndex  int
	CompletedIndexes   []int
	CurrentModuleIndex int
	ExamPassed         bool
	Paid               bool
}

// Timeline lays out the module segments followed by the exam and payment
// pseudo-segments. Those two sit outside the numeric sequence and only unlock
// once the final module is complete; payment additionally waits on the exam.
func Timeline(in TimelineInput) []Segment {
	done := make(map[int]bool, len(in.CompletedIndexes))
	for _, idx := range in.CompletedIndexes {
		done[idx] = true
	}

	segments := make([]Segment, 0, in.TotalModules+2)
	for i := 0; i < in.TotalModules; i++ {
		segments = append(segments, Segment{
			Kind:      SegmentModule,
			Index:     i,
			Unlocked:  CanNavigate(i, in.MaxCompletedIndex),
			Completed: done[i],
			Current:   i == in.CurrentModuleIndex,
		})
	}

	examUnlocked := ExamUnlocked(in.TotalModules, in.MaxCompletedIndex)
	segments = append(segments,
		Segment{
			Kind:      SegmentExam,
			Index:     in.TotalModules,
			Unlocked:  examUnlocked,
			Completed: in.ExamPassed,
		},
		Segment{
			Kind:      SegmentPayment,
			Index:     in.TotalModules + 1,
			Unlocked:  examUnlocked && in.ExamPassed,
			Completed: in.Paid,
		},
	)
	return segments
}
