package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/cache"
	"github.com/permitcourse/course-backend/internal/ledger"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/observability"
	"github.com/permitcourse/course-backend/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var tracer = observability.Tracer("github.com/permitcourse/course-backend/internal/service")

type ProgressService struct {
	content   repository.ContentRepositoryInterface
	progress  repository.ProgressRepositoryInterface
	cache     *cache.ContentCache
	threshold int
	now       func() time.Time
}

func NewProgressService(
	content repository.ContentRepositoryInterface,
	progress repository.ProgressRepositoryInterface,
	contentCache *cache.ContentCache,
	requiredSeconds int,
) *ProgressService {
	if requiredSeconds <= 0 {
		requiredSeconds = ledger.DefaultCourseRequiredSeconds
	}
	return &ProgressService{
		content:   content,
		progress:  progress,
		cache:     contentCache,
		threshold: requiredSeconds,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SlideInput identifies the slide a learner is on. The catalog is the
// authority for lesson and index; ModuleID must agree with it.
type SlideInput struct {
	ModuleID   uuid.UUID `json:"module_id"`
	LessonID   uuid.UUID `json:"lesson_id"`
	SlideID    uuid.UUID `json:"slide_id"`
	SlideIndex int       `json:"slide_index"`
}

// StartSlide opens a slide and returns its progress row. Reopening a slide
// leaves the row as it was.
func (s *ProgressService) StartSlide(ctx context.Context, userID uuid.UUID, in SlideInput) (*models.SlideProgress, error) {
	ctx, span := tracer.Start(ctx, "ProgressService.StartSlide")
	defer span.End()

	params, _, err := s.resolveSlide(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	if err := s.progress.StartSlide(ctx, params); err != nil {
		return nil, fmt.Errorf("start slide: %w", err)
	}
	row, err := s.progress.FindSlideProgress(ctx, userID, params.SlideID)
	if err != nil {
		return nil, fmt.Errorf("load slide progress: %w", err)
	}
	return row, nil
}

// RecordSlideProgress credits incrementSeconds of watch time to a slide,
// capped at the slide's required seconds, and marks the slide completed.
func (s *ProgressService) RecordSlideProgress(ctx context.Context, userID uuid.UUID, in SlideInput, incrementSeconds int) (*repository.RecordSlideResult, error) {
	ctx, span := tracer.Start(ctx, "ProgressService.RecordSlideProgress")
	defer span.End()

	if incrementSeconds < 0 {
		return nil, fmt.Errorf("%w: increment_seconds must not be negative", ErrInvalidInput)
	}
	params, module, err := s.resolveSlide(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	required, err := s.RequiredSecondsForSlide(ctx, in.SlideID)
	if err != nil {
		return nil, err
	}
	catalogSlides, err := s.slideCount(ctx, module.ID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("progress.increment_seconds", incrementSeconds),
		attribute.Int("progress.required_seconds", required),
	)

	res, err := s.progress.RecordSlide(ctx, repository.RecordSlideParams{
		StartSlideParams: params,
		IncrementSeconds: incrementSeconds,
		RequiredSeconds:  required,
		CatalogSlides:    catalogSlides,
	})
	if err != nil {
		return nil, fmt.Errorf("record slide: %w", err)
	}
	return res, nil
}

// RequiredSecondsForSlide is the sum of the slide's caption durations. It is
// the only place required time is computed.
func (s *ProgressService) RequiredSecondsForSlide(ctx context.Context, slideID uuid.UUID) (int, error) {
	if slideID == uuid.Nil {
		return 0, fmt.Errorf("%w: slide_id is required", ErrInvalidInput)
	}
	if seconds, ok := s.cache.RequiredSeconds(ctx, slideID); ok {
		return seconds, nil
	}
	seconds, err := s.content.SumCaptionSeconds(ctx, slideID)
	if err != nil {
		return 0, fmt.Errorf("sum caption seconds: %w", err)
	}
	_ = s.cache.SetRequiredSeconds(ctx, slideID, seconds)
	return seconds, nil
}

func (s *ProgressService) RecomputeCourseSummary(ctx context.Context, userID, courseID uuid.UUID) (ledger.CourseSummary, error) {
	ctx, span := tracer.Start(ctx, "ProgressService.RecomputeCourseSummary")
	defer span.End()

	if userID == uuid.Nil || courseID == uuid.Nil {
		return ledger.CourseSummary{}, fmt.Errorf("%w: user and course are required", ErrInvalidInput)
	}
	rows, err := s.progress.ListModuleProgress(ctx, userID, courseID)
	if err != nil {
		return ledger.CourseSummary{}, fmt.Errorf("list module progress: %w", err)
	}
	return s.summarize(rows), nil
}

// ExamUnlocked reports whether every module of the course has been
// completed in order, which is what opens the final exam.
func (s *ProgressService) ExamUnlocked(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "ProgressService.ExamUnlocked")
	defer span.End()

	var (
		rows  []models.ModuleProgress
		total int
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
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("load exam gate: %w", err)
	}
	return ledger.ExamUnlocked(total, ledger.MaxCompletedIndex(completedModuleIndexes(rows))), nil
}

type CourseOverview struct {
	Summary            ledger.CourseSummary    `json:"summary"`
	CompletedModules   int                     `json:"completed_modules"`
	TotalModules       int                     `json:"total_modules"`
	ProgressPercent    int                     `json:"progress_percent"`
	MaxCompletedIndex  int                     `json:"max_completed_index"`
	CurrentModuleIndex int                     `json:"current_module_index"`
	Modules            []models.ModuleProgress `json:"modules"`
}

// Overview is the course summary plus the module counts the UI shows.
func (s *ProgressService) Overview(ctx context.Context, userID, courseID uuid.UUID) (*CourseOverview, error) {
	ctx, span := tracer.Start(ctx, "ProgressService.Overview")
	defer span.End()

	if userID == uuid.Nil || courseID == uuid.Nil {
		return nil, fmt.Errorf("%w: user and course are required", ErrInvalidInput)
	}

	var (
		rows  []models.ModuleProgress
		total int
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
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load overview: %w", err)
	}

	completed := completedModuleIndexes(rows)
	return &CourseOverview{
		Summary:            s.summarize(rows),
		CompletedModules:   len(completed),
		TotalModules:       total,
		ProgressPercent:    ledger.ProgressPercent(len(completed), total),
		MaxCompletedIndex:  ledger.MaxCompletedIndex(completed),
		CurrentModuleIndex: currentModuleIndex(rows),
		Modules:            rows,
	}, nil
}

func (s *ProgressService) summarize(rows []models.ModuleProgress) ledger.CourseSummary {
	seconds := make([]int, 0, len(rows))
	for _, row := range rows {
		seconds = append(seconds, row.TotalEffectiveSeconds)
	}
	return ledger.Summarize(seconds, s.threshold)
}

func (s *ProgressService) resolveSlide(ctx context.Context, userID uuid.UUID, in SlideInput) (repository.StartSlideParams, *models.CourseModule, error) {
	if userID == uuid.Nil {
		return repository.StartSlideParams{}, nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if in.SlideID == uuid.Nil || in.ModuleID == uuid.Nil {
		return repository.StartSlideParams{}, nil, fmt.Errorf("%w: slide_id and module_id are required", ErrInvalidInput)
	}

	slide, err := s.content.FindSlide(ctx, in.SlideID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.StartSlideParams{}, nil, ErrSlideNotFound
	}
	if err != nil {
		return repository.StartSlideParams{}, nil, fmt.Errorf("find slide: %w", err)
	}
	if slide.ModuleID != in.ModuleID {
		return repository.StartSlideParams{}, nil, fmt.Errorf("%w: slide does not belong to module", ErrInvalidInput)
	}

	module, err := s.content.FindModule(ctx, slide.ModuleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.StartSlideParams{}, nil, ErrModuleNotFound
	}
	if err != nil {
		return repository.StartSlideParams{}, nil, fmt.Errorf("find module: %w", err)
	}

	rows, err := s.progress.ListModuleProgress(ctx, userID, module.CourseID)
	if err != nil {
		return repository.StartSlideParams{}, nil, fmt.Errorf("list module progress: %w", err)
	}
	if !ledger.CanNavigate(module.ModuleIndex, ledger.MaxCompletedIndex(completedModuleIndexes(rows))) {
		return repository.StartSlideParams{}, nil, fmt.Errorf("%w: module %d", ErrModuleLocked, module.ModuleIndex)
	}

	return repository.StartSlideParams{
		UserID:      userID,
		CourseID:    module.CourseID,
		ModuleID:    module.ID,
		ModuleIndex: module.ModuleIndex,
		LessonID:    slide.LessonID,
		SlideID:     slide.ID,
		SlideIndex:  slide.SlideIndex,
		Now:         s.now(),
	}, module, nil
}

func (s *ProgressService) slideCount(ctx context.Context, moduleID uuid.UUID) (int, error) {
	if n, ok := s.cache.SlideCount(ctx, moduleID); ok {
		return n, nil
	}
	n, err := s.content.CountSlides(ctx, moduleID)
	if err != nil {
		return 0, fmt.Errorf("count slides: %w", err)
	}
	_ = s.cache.SetSlideCount(ctx, moduleID, n)
	return n, nil
}

func completedModuleIndexes(rows []models.ModuleProgress) []int {
	var out []int
	for _, row := range rows {
		if row.Completed {
			out = append(out, row.ModuleIndex)
		}
	}
	return out
}

// currentModuleIndex is the furthest module the learner has opened.
func currentModuleIndex(rows []models.ModuleProgress) int {
	current := 0
	for _, row := range rows {
		if row.ModuleIndex > current {
			current = row.ModuleIndex
		}
	}
	return current
}
