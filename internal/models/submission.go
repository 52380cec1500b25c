package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionOutcome string

const (
	SubmissionPending SubmissionOutcome = "pending"
)

// SubmissionAudit is an append-only record of a DMV submission trigger. It is
// written in the same transaction that sets dmv_submitted_at, so there is
// exactly one row per submitted learner and course.
type SubmissionAudit struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	CourseID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"course_id"`
	Outcome   SubmissionOutcome `gorm:"type:varchar(32);not null" json:"outcome"`
	Detail    string            `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (SubmissionAudit) TableName() string { return "dmv_submission_log" }

func (a *SubmissionAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// SubmissionEvent is what downstream DMV reporting receives once per learner
// and course.
type SubmissionEvent struct {
	AuditID     uuid.UUID  `json:"audit_id"`
	UserID      uuid.UUID  `json:"user_id"`
	CourseID    uuid.UUID  `json:"course_id"`
	CompletedAt *time.Time `json:"completed_at"`
	PassedAt    *time.Time `json:"passed_at"`
	ExamScore   *int       `json:"exam_score"`
	PaidAt      *time.Time `json:"paid_at"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// All lists every table the service migrates.
func All() []interface{} {
	return []interface{}{
		&CourseModule{},
		&Slide{},
		&SlideCaption{},
		&SlideProgress{},
		&ModuleProgress{},
		&CourseStatus{},
		&SubmissionAudit{},
	}
}
