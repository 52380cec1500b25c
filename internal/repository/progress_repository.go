package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/ledger"
	"github.com/permitcourse/course-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StartSlideParams struct {
	UserID      uuid.UUID
	CourseID    uuid.UUID
	ModuleID    uuid.UUID
	ModuleIndex int
	LessonID    uuid.UUID
	SlideID     uuid.UUID
	SlideIndex  int
	Now         time.Time
}

type RecordSlideParams struct {
	StartSlideParams
	IncrementSeconds int
	RequiredSeconds  int
	// CatalogSlides is how many slides the module has; the module is complete
	// once that many of the learner's slides are.
	CatalogSlides int
}

type RecordSlideResult struct {
	Slide  models.SlideProgress
	Module models.ModuleProgress
}

type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) StartSlide(ctx context.Context, p StartSlideParams) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedSlide(tx, p); err != nil {
			return err
		}
		return seedModule(tx, p)
	})
}

// RecordSlide credits watch time to a slide and refreshes the module roll-up.
// Both rows are locked for the read-modify-write so concurrent heartbeats from
// two tabs cannot lose an increment.
func (r *ProgressRepository) RecordSlide(ctx context.Context, p RecordSlideParams) (*RecordSlideResult, error) {
	var result RecordSlideResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedSlide(tx, p.StartSlideParams); err != nil {
			return err
		}
		if err := seedModule(tx, p.StartSlideParams); err != nil {
			return err
		}

		var slide models.SlideProgress
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND slide_id = ?", p.UserID, p.SlideID).
			First(&slide).Error; err != nil {
			return fmt.Errorf("lock slide progress: %w", err)
		}

		slide.EffectiveSeconds = ledger.ClampSeconds(slide.EffectiveSeconds, p.IncrementSeconds, p.RequiredSeconds)
		slide.Completed = true
		if slide.CompletedAt == nil {
			slide.CompletedAt = &p.Now
		}
		slide.UpdatedAt = p.Now
		if err := tx.Model(&models.SlideProgress{}).Where("id = ?", slide.ID).Updates(map[string]interface{}{
			"effective_seconds": slide.EffectiveSeconds,
			"completed":         slide.Completed,
			"completed_at":      slide.CompletedAt,
			"updated_at":        slide.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("update slide progress: %w", err)
		}

		var module models.ModuleProgress
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND module_id = ?", p.UserID, p.ModuleID).
			First(&module).Error; err != nil {
			return fmt.Errorf("lock module progress: %w", err)
		}

		var total int64
		if err := tx.Model(&models.SlideProgress{}).
			Select("COALESCE(SUM(effective_seconds), 0)").
			Where("user_id = ? AND module_id = ?", p.UserID, p.ModuleID).
			Scan(&total).Error; err != nil {
			return fmt.Errorf("sum module seconds: %w", err)
		}
		var done int64
		if err := tx.Model(&models.SlideProgress{}).
			Where("user_id = ? AND module_id = ? AND completed = ?", p.UserID, p.ModuleID, true).
			Count(&done).Error; err != nil {
			return fmt.Errorf("count completed slides: %w", err)
		}

		if p.SlideIndex > module.HighestSlideIndexReached {
			module.HighestSlideIndexReached = p.SlideIndex
		}
		module.TotalEffectiveSeconds = int(total)
		if !module.Completed && p.CatalogSlides > 0 && int(done) >= p.CatalogSlides {
			module.Completed = true
			module.CompletedAt = &p.Now
		}
		module.UpdatedAt = p.Now
		if err := tx.Model(&models.ModuleProgress{}).Where("id = ?", module.ID).Updates(map[string]interface{}{
			"highest_slide_index_reached": module.HighestSlideIndexReached,
			"total_effective_seconds":     module.TotalEffectiveSeconds,
			"completed":                   module.Completed,
			"completed_at":                module.CompletedAt,
			"updated_at":                  module.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("update module progress: %w", err)
		}

		result = RecordSlideResult{Slide: slide, Module: module}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ProgressRepository) FindSlideProgress(ctx context.Context, userID, slideID uuid.UUID) (*models.SlideProgress, error) {
	var slide models.SlideProgress
	if err := r.db.WithContext(ctx).Where("user_id = ? AND slide_id = ?", userID, slideID).First(&slide).Error; err != nil {
		return nil, err
	}
	return &slide, nil
}

func (r *ProgressRepository) ListModuleProgress(ctx context.Context, userID, courseID uuid.UUID) ([]models.ModuleProgress, error) {
	var rows []models.ModuleProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("module_index ASC").
		Find(&rows).Error
	return rows, err
}

// seedSlide inserts the slide row if absent. An existing row keeps its
// started_at, seconds and completion.
func seedSlide(tx *gorm.DB, p StartSlideParams) error {
	row := models.SlideProgress{
		UserID:     p.UserID,
		SlideID:    p.SlideID,
		ModuleID:   p.ModuleID,
		LessonID:   p.LessonID,
		SlideIndex: p.SlideIndex,
		StartedAt:  p.Now,
		UpdatedAt:  p.Now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("seed slide progress: %w", err)
	}
	return nil
}

func seedModule(tx *gorm.DB, p StartSlideParams) error {
	row := models.ModuleProgress{
		UserID:      p.UserID,
		ModuleID:    p.ModuleID,
		CourseID:    p.CourseID,
		ModuleIndex: p.ModuleIndex,
		CreatedAt:   p.Now,
		UpdatedAt:   p.Now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("seed module progress: %w", err)
	}
	return nil
}
