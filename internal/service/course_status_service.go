package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/cache"
	"github.com/permitcourse/course-backend/internal/ledger"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// SubmissionDispatcher delivers a committed DMV submission downstream.
type SubmissionDispatcher interface {
	Dispatch(ctx context.Context, evt models.SubmissionEvent) error
}

// CourseProgress answers the study-time and module-order questions the
// status facts depend on.
type CourseProgress interface {
	RecomputeCourseSummary(ctx context.Context, userID, courseID uuid.UUID) (ledger.CourseSummary, error)
	ExamUnlocked(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// CourseStatusService owns the three fact producers (study time, exam,
// payment) and the one-time DMV submission that fires when all three hold.
type CourseStatusService struct {
	statuses   repository.CourseStatusRepositoryInterface
	progress   CourseProgress
	dispatcher SubmissionDispatcher
	cache      *cache.StatusCache
	log        *logger.Logger
	now        func() time.Time
}

func NewCourseStatusService(
	statuses repository.CourseStatusRepositoryInterface,
	progress CourseProgress,
	dispatcher SubmissionDispatcher,
	statusCache *cache.StatusCache,
	log *logger.Logger,
) *CourseStatusService {
	if log == nil {
		log = logger.Nop()
	}
	return &CourseStatusService{
		statuses:   statuses,
		progress:   progress,
		dispatcher: dispatcher,
		cache:      statusCache,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *CourseStatusService) GetStatus(ctx context.Context, userID, courseID uuid.UUID) (models.CourseStatusResponse, error) {
	ctx, span := tracer.Start(ctx, "CourseStatusService.GetStatus")
	defer span.End()

	if err := requireIDs(userID, courseID); err != nil {
		return models.CourseStatusResponse{}, err
	}
	if cached, ok := s.cache.Get(ctx, userID, courseID); ok {
		return *cached, nil
	}

	row, err := s.statuses.Ensure(ctx, userID, courseID)
	if err != nil {
		return models.CourseStatusResponse{}, fmt.Errorf("load course status: %w", err)
	}
	resp := row.ToResponse()
	s.remember(ctx, userID, courseID, resp)
	return resp, nil
}

// MarkTimeComplete records course completion once the learner's effective
// seconds reach the threshold. Below the threshold nothing is written.
func (s *CourseStatusService) MarkTimeComplete(ctx context.Context, userID, courseID uuid.UUID) (models.CourseStatusResponse, ledger.CourseSummary, error) {
	ctx, span := tracer.Start(ctx, "CourseStatusService.MarkTimeComplete")
	defer span.End()

	if err := requireIDs(userID, courseID); err != nil {
		return models.CourseStatusResponse{}, ledger.CourseSummary{}, err
	}
	summary, err := s.progress.RecomputeCourseSummary(ctx, userID, courseID)
	if err != nil {
		return models.CourseStatusResponse{}, summary, err
	}
	span.SetAttributes(attribute.Bool("course.eligible_for_exam", summary.EligibleForExam))

	if !summary.EligibleForExam {
		resp, err := s.GetStatus(ctx, userID, courseID)
		return resp, summary, err
	}

	row, err := s.statuses.SetCompletedAt(ctx, userID, courseID, s.now())
	if err != nil {
		return models.CourseStatusResponse{}, summary, fmt.Errorf("set completed: %w", err)
	}
	resp, err := s.afterFactWrite(ctx, row)
	return resp, summary, err
}

// RecordExamResult stores a passing attempt. A failed attempt is not a fact
// and leaves the record untouched. The exam opens only after every module
// has been completed in order.
func (s *CourseStatusService) RecordExamResult(ctx context.Context, userID, courseID uuid.UUID, passed bool, score *int) (models.CourseStatusResponse, error) {
	ctx, span := tracer.Start(ctx, "CourseStatusService.RecordExamResult")
	defer span.End()

	if err := requireIDs(userID, courseID); err != nil {
		return models.CourseStatusResponse{}, err
	}
	if score != nil && (*score < 0 || *score > 100) {
		return models.CourseStatusResponse{}, fmt.Errorf("%w: score must be between 0 and 100", ErrInvalidInput)
	}
	unlocked, err := s.progress.ExamUnlocked(ctx, userID, courseID)
	if err != nil {
		return models.CourseStatusResponse{}, err
	}
	if !unlocked {
		return models.CourseStatusResponse{}, ErrExamLocked
	}
	if !passed {
		return s.GetStatus(ctx, userID, courseID)
	}

	row, err := s.statuses.SetExamPassed(ctx, userID, courseID, score, s.now())
	if err != nil {
		return models.CourseStatusResponse{}, fmt.Errorf("set exam passed: %w", err)
	}
	return s.afterFactWrite(ctx, row)
}

// RecordPayment stores the first payment time. A zero paidAt means now.
func (s *CourseStatusService) RecordPayment(ctx context.Context, userID, courseID uuid.UUID, paidAt time.Time) (models.CourseStatusResponse, error) {
	ctx, span := tracer.Start(ctx, "CourseStatusService.RecordPayment")
	defer span.End()

	if err := requireIDs(userID, courseID); err != nil {
		return models.CourseStatusResponse{}, err
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	row, err := s.statuses.SetPaidAt(ctx, userID, courseID, paidAt.UTC())
	if err != nil {
		return models.CourseStatusResponse{}, fmt.Errorf("set paid: %w", err)
	}
	return s.afterFactWrite(ctx, row)
}

// MaybeTriggerSubmission submits the learner to the DMV if every
// precondition holds and no submission has happened yet. It reports whether
// this call performed the submission; at most one call ever does per record.
func (s *CourseStatusService) MaybeTriggerSubmission(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "CourseStatusService.MaybeTriggerSubmission")
	defer span.End()

	row, err := s.statuses.Find(ctx, userID, courseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load course status: %w", err)
	}
	if !ledger.ReadyForSubmission(row.Facts()) {
		return false, nil
	}

	submittedAt := s.now()
	audit, err := s.statuses.MarkSubmitted(ctx, userID, courseID, submittedAt)
	if err != nil {
		return false, fmt.Errorf("mark submitted: %w", err)
	}
	if audit == nil {
		return false, nil
	}
	span.SetAttributes(attribute.Bool("dmv.submitted", true))

	submitted := *row
	submitted.DMVSubmittedAt = &submittedAt
	s.publish(ctx, userID, courseID, submitted.ToResponse())

	evt := models.SubmissionEvent{
		AuditID:     audit.ID,
		UserID:      userID,
		CourseID:    courseID,
		CompletedAt: row.CompletedAt,
		PassedAt:    row.PassedAt,
		ExamScore:   row.ExamScore,
		PaidAt:      row.PaidAt,
		SubmittedAt: submittedAt,
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, evt); err != nil {
			s.log.Error("dmv submission dispatch failed", "audit_id", audit.ID, "course_id", courseID, "error", err)
		}
	}
	s.log.Info("dmv submission triggered", "audit_id", audit.ID, "course_id", courseID)
	return true, nil
}

func (s *CourseStatusService) ListSubmissions(ctx context.Context, courseID uuid.UUID, limit int) ([]models.SubmissionAudit, error) {
	if courseID == uuid.Nil {
		return nil, fmt.Errorf("%w: course is required", ErrInvalidInput)
	}
	return s.statuses.ListSubmissionAudits(ctx, courseID, limit)
}

// afterFactWrite caches the written record, gives the submission trigger its
// chance, and returns the record as it now stands.
func (s *CourseStatusService) afterFactWrite(ctx context.Context, row *models.CourseStatus) (models.CourseStatusResponse, error) {
	s.publish(ctx, row.UserID, row.CourseID, row.ToResponse())

	triggered, err := s.MaybeTriggerSubmission(ctx, row.UserID, row.CourseID)
	if err != nil {
		return row.ToResponse(), err
	}
	if triggered {
		fresh, err := s.statuses.Find(ctx, row.UserID, row.CourseID)
		if err != nil {
			return row.ToResponse(), fmt.Errorf("reload course status: %w", err)
		}
		row = fresh
	}
	return row.ToResponse(), nil
}

// remember caches a status read from the store. A refused write means a fact
// writer already cached a newer status.
func (s *CourseStatusService) remember(ctx context.Context, userID, courseID uuid.UUID, resp models.CourseStatusResponse) {
	stored, err := s.cache.Set(ctx, userID, courseID, resp)
	if err != nil {
		s.log.Warn("status cache write failed", "error", err)
		return
	}
	if !stored {
		s.log.Debug("stale status not cached", "course_id", courseID, "status", resp.Status)
	}
}

// publish caches the status a fact write produced. If that fails the entry
// is dropped so readers go back to the store.
func (s *CourseStatusService) publish(ctx context.Context, userID, courseID uuid.UUID, resp models.CourseStatusResponse) {
	if _, err := s.cache.Set(ctx, userID, courseID, resp); err != nil {
		s.log.Warn("status cache write failed", "error", err)
		if err := s.cache.Invalidate(ctx, userID, courseID); err != nil {
			s.log.Warn("status cache invalidate failed", "error", err)
		}
	}
}

func requireIDs(userID, courseID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if courseID == uuid.Nil {
		return fmt.Errorf("%w: course is required", ErrInvalidInput)
	}
	return nil
}
