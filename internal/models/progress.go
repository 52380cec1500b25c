package models

import (
	"time"

	"github.com/google/uuid"
)

// SlideProgress is a learner's credited watch time on one slide.
// EffectiveSeconds only grows and never exceeds the slide's required seconds.
type SlideProgress struct {
	ID               uint       `gorm:"primarykey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_slide_progress_user_slide" json:"user_id"`
	SlideID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_slide_progress_user_slide" json:"slide_id"`
	ModuleID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"module_id"`
	LessonID         uuid.UUID  `gorm:"type:uuid;not null" json:"lesson_id"`
	SlideIndex       int        `gorm:"not null;default:0" json:"slide_index"`
	EffectiveSeconds int        `gorm:"not null;default:0" json:"effective_seconds"`
	Completed        bool       `gorm:"not null;default:false" json:"completed"`
	StartedAt        time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (SlideProgress) TableName() string { return "slide_progress" }

// ModuleProgress rolls up a learner's slides for one module. The row is
// created on the first slide start and HighestSlideIndexReached is monotonic.
type ModuleProgress struct {
	ID                       uint       `gorm:"primarykey" json:"id"`
	UserID                   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_module_progress_user_module" json:"user_id"`
	ModuleID                 uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_module_progress_user_module" json:"module_id"`
	CourseID                 uuid.UUID  `gorm:"type:uuid;not null;index" json:"course_id"`
	ModuleIndex              int        `gorm:"not null;default:0" json:"module_index"`
	HighestSlideIndexReached int        `gorm:"not null;default:0" json:"highest_slide_index_reached"`
	TotalEffectiveSeconds    int        `gorm:"not null;default:0" json:"total_effective_seconds"`
	Completed                bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt              *time.Time `json:"completed_at"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

func (ModuleProgress) TableName() string { return "module_progress" }
