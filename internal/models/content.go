package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CourseModule is one ordered unit of a course. The catalog tables are
// maintained by the content team and only read here.
type CourseModule struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_module_index" json:"course_id"`
	ModuleIndex int       `gorm:"not null;uniqueIndex:idx_course_module_index" json:"module_index"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CourseModule) TableName() string { return "course_modules" }

type Slide struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID   uuid.UUID `gorm:"type:uuid;not null;index" json:"module_id"`
	LessonID   uuid.UUID `gorm:"type:uuid;not null;index" json:"lesson_id"`
	SlideIndex int       `gorm:"not null" json:"slide_index"`
	Title      string    `gorm:"type:varchar(200)" json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Slide) TableName() string { return "slides" }

// SlideCaption is a narration cue. Seconds is how long the cue stays on
// screen; the sum over a slide is how long that slide must be watched.
type SlideCaption struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SlideID   uuid.UUID `gorm:"type:uuid;not null;index" json:"slide_id"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	Seconds   int       `gorm:"not null;default:0" json:"seconds"`
	Text      string    `gorm:"type:text" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (SlideCaption) TableName() string { return "slide_captions" }

func (m *CourseModule) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (s *Slide) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (c *SlideCaption) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
