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

type CourseStatusRepository struct {
	db *gorm.DB
}

func NewCourseStatusRepository(db *gorm.DB) *CourseStatusRepository {
	return &CourseStatusRepository{db: db}
}

// Ensure creates the record on first touch and returns it.
func (r *CourseStatusRepository) Ensure(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseStatus, error) {
	var row *models.CourseStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedCourseStatus(tx, userID, courseID); err != nil {
			return err
		}
		var err error
		row, err = findCourseStatus(tx, userID, courseID)
		return err
	})
	return row, err
}

func (r *CourseStatusRepository) Find(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseStatus, error) {
	return findCourseStatus(r.db.WithContext(ctx), userID, courseID)
}

func (r *CourseStatusRepository) SetCompletedAt(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.CourseStatus, error) {
	return r.setFact(ctx, userID, courseID, "completed_at IS NULL", map[string]interface{}{
		"completed_at": at,
	})
}

func (r *CourseStatusRepository) SetExamPassed(ctx context.Context, userID, courseID uuid.UUID, score *int, at time.Time) (*models.CourseStatus, error) {
	return r.setFact(ctx, userID, courseID, "passed_at IS NULL", map[string]interface{}{
		"exam_passed": true,
		"exam_score":  score,
		"passed_at":   at,
	})
}

func (r *CourseStatusRepository) SetPaidAt(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.CourseStatus, error) {
	return r.setFact(ctx, userID, courseID, "paid_at IS NULL", map[string]interface{}{
		"paid_at": at,
	})
}

// MarkSubmitted flips dmv_submitted_at exactly once. The guard re-checks every
// precondition in SQL so only one concurrent caller can match the row; that
// caller also writes the audit entry in the same transaction. A nil audit with
// a nil error means the row did not qualify or another writer got there first.
func (r *CourseStatusRepository) MarkSubmitted(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.SubmissionAudit, error) {
	var audit *models.SubmissionAudit
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CourseStatus{}).
			Where("user_id = ? AND course_id = ?", userID, courseID).
			Where("dmv_submitted_at IS NULL AND exam_passed = ? AND completed_at IS NOT NULL AND paid_at IS NOT NULL", true).
			Updates(map[string]interface{}{
				"dmv_submitted_at": at,
				"status":           ledger.StatusDMVSubmitted,
				"updated_at":       at,
			})
		if res.Error != nil {
			return fmt.Errorf("mark submitted: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		entry := &models.SubmissionAudit{
			UserID:    userID,
			CourseID:  courseID,
			Outcome:   models.SubmissionPending,
			CreatedAt: at,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("write submission audit: %w", err)
		}
		audit = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

func (r *CourseStatusRepository) ListSubmissionAudits(ctx context.Context, courseID uuid.UUID, limit int) ([]models.SubmissionAudit, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}
	var rows []models.SubmissionAudit
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// setFact writes one fact if it is still unset, then rewrites the stored
// status from the row's facts. A fact that is already present is left alone
// and the call still succeeds.
func (r *CourseStatusRepository) setFact(ctx context.Context, userID, courseID uuid.UUID, guard string, updates map[string]interface{}) (*models.CourseStatus, error) {
	var row *models.CourseStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedCourseStatus(tx, userID, courseID); err != nil {
			return err
		}

		updates["updated_at"] = time.Now()
		if err := tx.Model(&models.CourseStatus{}).
			Where("user_id = ? AND course_id = ?", userID, courseID).
			Where(guard).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("set course fact: %w", err)
		}

		var err error
		row, err = findCourseStatus(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, courseID)
		if err != nil {
			return err
		}

		derived := ledger.DeriveStatus(row.Facts())
		if derived != row.Status {
			if err := tx.Model(&models.CourseStatus{}).Where("id = ?", row.ID).Update("status", derived).Error; err != nil {
				return fmt.Errorf("refresh status: %w", err)
			}
			row.Status = derived
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func seedCourseStatus(tx *gorm.DB, userID, courseID uuid.UUID) error {
	row := models.CourseStatus{
		UserID:   userID,
		CourseID: courseID,
		Status:   ledger.StatusInProgress,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("seed course status: %w", err)
	}
	return nil
}

func findCourseStatus(db *gorm.DB, userID, courseID uuid.UUID) (*models.CourseStatus, error) {
	var row models.CourseStatus
	if err := db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
