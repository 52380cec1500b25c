package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/models"
	"gorm.io/gorm"
)

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func (r *ContentRepository) FindModule(ctx context.Context, moduleID uuid.UUID) (*models.CourseModule, error) {
	var module models.CourseModule
	if err := r.db.WithContext(ctx).Where("id = ?", moduleID).First(&module).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *ContentRepository) FindSlide(ctx context.Context, slideID uuid.UUID) (*models.Slide, error) {
	var slide models.Slide
	if err := r.db.WithContext(ctx).Where("id = ?", slideID).First(&slide).Error; err != nil {
		return nil, err
	}
	return &slide, nil
}

// SumCaptionSeconds is the required watch time of a slide: the sum of its
// caption durations, 0 when it has none.
func (r *ContentRepository) SumCaptionSeconds(ctx context.Context, slideID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.SlideCaption{}).
		Select("COALESCE(SUM(seconds), 0)").
		Where("slide_id = ?", slideID).
		Scan(&total).Error
	return int(total), err
}

func (r *ContentRepository) CountModules(ctx context.Context, courseID uuid.UUID) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.CourseModule{}).Where("course_id = ?", courseID).Count(&n).Error
	return int(n), err
}

func (r *ContentRepository) CountSlides(ctx context.Context, moduleID uuid.UUID) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Slide{}).Where("module_id = ?", moduleID).Count(&n).Error
	return int(n), err
}
