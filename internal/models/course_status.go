package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/ledger"
)

// CourseStatus holds the write-once facts for one learner and course.
// Status is a cached projection of the facts and is rewritten from them on
// every fact write; nothing sets it directly.
type CourseStatus struct {
	ID             uint          `gorm:"primarykey" json:"id"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_course_status_user_course" json:"user_id"`
	CourseID       uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_course_status_user_course" json:"course_id"`
	Status         ledger.Status `gorm:"type:varchar(32);not null;default:'in_progress'" json:"status"`
	CompletedAt    *time.Time    `json:"completed_at"`
	ExamPassed     bool          `gorm:"not null;default:false" json:"exam_passed"`
	ExamScore      *int          `json:"exam_score"`
	PassedAt       *time.Time    `json:"passed_at"`
	PaidAt         *time.Time    `json:"paid_at"`
	DMVSubmittedAt *time.Time    `gorm:"column:dmv_submitted_at" json:"dmv_submitted_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (CourseStatus) TableName() string { return "course_statuses" }

// Facts returns the ledger view of the row. A nil row is a record that does
// not exist yet.
func (s *CourseStatus) Facts() ledger.Facts {
	if s == nil {
		return ledger.Facts{}
	}
	return ledger.Facts{
		Exists:         true,
		CompletedAt:    s.CompletedAt,
		ExamPassed:     s.ExamPassed,
		PaidAt:         s.PaidAt,
		DMVSubmittedAt: s.DMVSubmittedAt,
	}
}

type CourseStatusResponse struct {
	Status         ledger.Status `json:"status"`
	CourseComplete bool          `json:"course_complete"`
	ExamPassed     bool          `json:"exam_passed"`
	Paid           bool          `json:"paid"`
	DMVSubmitted   bool          `json:"dmv_submitted"`
	CompletedAt    *time.Time    `json:"completed_at"`
	PassedAt       *time.Time    `json:"passed_at"`
	PaidAt         *time.Time    `json:"paid_at"`
	DMVSubmittedAt *time.Time    `json:"dmv_submitted_at"`
}

// ToResponse derives the status label from the facts rather than trusting the
// stored column.
func (s *CourseStatus) ToResponse() CourseStatusResponse {
	facts := s.Facts()
	resp := CourseStatusResponse{Status: ledger.DeriveStatus(facts)}
	if s == nil {
		return resp
	}
	resp.CourseComplete = s.CompletedAt != nil
	resp.ExamPassed = s.ExamPassed
	resp.Paid = s.PaidAt != nil
	resp.DMVSubmitted = s.DMVSubmittedAt != nil
	resp.CompletedAt = s.CompletedAt
	resp.PassedAt = s.PassedAt
	resp.PaidAt = s.PaidAt
	resp.DMVSubmittedAt = s.DMVSubmittedAt
	return resp
}
