package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/ledger"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/repository"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type NavigationService struct {
	content  repository.ContentRepositoryInterface
	progress repository.ProgressRepositoryInterface
	statuses repository.CourseStatusRepositoryInterface
}

func NewNavigationService(
	content repository.ContentRepositoryInterface,
	progress repository.ProgressRepositoryInterface,
	statuses repository.CourseStatusRepositoryInterface,
) *NavigationService {
	return &NavigationService{content: content, progress: progress, statuses: statuses}
}

type NavigationDecision struct {
	TargetIndex       int  `json:"target_index"`
	MaxCompletedIndex int  `json:"max_completed_index"`
	Allowed           bool `json:"allowed"`
}

// CheckNavigation answers whether the learner may open module targetIndex.
// A refusal is an answer, not an error.
func (s *NavigationService) CheckNavigation(ctx context.Context, userID, courseID uuid.UUID, targetIndex int) (NavigationDecision, error) {
	ctx, span := tracer.Start(ctx, "NavigationService.CheckNavigation")
	defer span.End()

	if err := requireIDs(userID, courseID); err != nil {
		return NavigationDecision{}, err
	}
	rows, err := s.progress.ListModuleProgress(ctx, userID, courseID)
	if err != nil {
		return NavigationDecision{}, fmt.Errorf("list module progress: %w", err)
	}
	maxCompleted := ledger.MaxCompletedIndex(completedModuleIndexes(rows))
	return NavigationDecision{
		TargetIndex:       targetIndex,
		MaxCompletedIndex: maxCompleted,
		Allowed:           ledger.CanNavigate(targetIndex, maxCompleted),
	}, nil
}

// Timeline lays out every module plus the exam and payment stops.
func (s *NavigationService) Timeline(ctx context.Context, userID, courseID uuid.UUID) ([]ledger.Segment, error) {
	ctx, span := tracer.Start(ctx, "NavigationService.Timeline")
	defer span.End()

	if err := requireIDs(userID, courseID); err != nil {
		return nil, err
	}

	var (
		rows   []models.ModuleProgress
		total  int
		status *models.CourseStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.progress.ListModuleProgress(gctx, userID, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.content.CountModules(gctx, courseID)
		return err
	})
	g.Go(func() error {
		row, err := s.statuses.Find(gctx, userID, courseID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		status = row
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}

	facts := status.Facts()
	completed := completedModuleIndexes(rows)
	return ledger.Timeline(ledger.TimelineInput{
		TotalModules:       total,
		MaxCompletedIndex:  ledger.MaxCompletedIndex(completed),
		CompletedIndexes:   completed,
		CurrentModuleIndex: currentModuleIndex(rows),
		ExamPassed:         facts.ExamPassed,
		Paid:               facts.PaidAt != nil,
	}), nil
}
