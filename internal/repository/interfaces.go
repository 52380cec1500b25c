package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/models"
)

// ContentRepositoryInterface reads the course catalog.
type ContentRepositoryInterface interface {
	FindModule(ctx context.Context, moduleID uuid.UUID) (*models.CourseModule, error)
	FindSlide(ctx context.Context, slideID uuid.UUID) (*models.Slide, error)
	SumCaptionSeconds(ctx context.Context, slideID uuid.UUID) (int, error)
	CountModules(ctx context.Context, courseID uuid.UUID) (int, error)
	CountSlides(ctx context.Context, moduleID uuid.UUID) (int, error)
}

// ProgressRepositoryInterface defines the contract for slide and module progress writes
type ProgressRepositoryInterface interface {
	StartSlide(ctx context.Context, p StartSlideParams) error
	RecordSlide(ctx context.Context, p RecordSlideParams) (*RecordSlideResult, error)
	FindSlideProgress(ctx context.Context, userID, slideID uuid.UUID) (*models.SlideProgress, error)
	ListModuleProgress(ctx context.Context, userID, courseID uuid.UUID) ([]models.ModuleProgress, error)
}

// CourseStatusRepositoryInterface defines the contract for the per-course fact record.
// Every setter is set-if-null and returns the row as it stands after the write.
type CourseStatusRepositoryInterface interface {
	Ensure(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseStatus, error)
	Find(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseStatus, error)
	SetCompletedAt(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.CourseStatus, error)
	SetExamPassed(ctx context.Context, userID, courseID uuid.UUID, score *int, at time.Time) (*models.CourseStatus, error)
	SetPaidAt(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.CourseStatus, error)
	MarkSubmitted(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.SubmissionAudit, error)
	ListSubmissionAudits(ctx context.Context, courseID uuid.UUID, limit int) ([]models.SubmissionAudit, error)
}
