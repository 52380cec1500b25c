package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/ledger"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/repository"
	"gorm.io/gorm"
)

// MockContentRepository is an in-memory catalog
type MockContentRepository struct {
	modules  map[uuid.UUID]*models.CourseModule
	slides   map[uuid.UUID]*models.Slide
	captions map[uuid.UUID][]int
	sumCalls int
	err      error
}

func NewMockContentRepository() *MockContentRepository {
	return &MockContentRepository{
		modules:  make(map[uuid.UUID]*models.CourseModule),
		slides:   make(map[uuid.UUID]*models.Slide),
		captions: make(map[uuid.UUID][]int),
	}
}

// AddModule registers a module whose slides have the given caption seconds.
func (m *MockContentRepository) AddModule(courseID uuid.UUID, index int, slideCaptions ...[]int) (*models.CourseModule, []*models.Slide) {
	module := &models.CourseModule{ID: uuid.New(), CourseID: courseID, ModuleIndex: index}
	m.modules[module.ID] = module
	lessonID := uuid.New()
	var slides []*models.Slide
	for i, cues := range slideCaptions {
		slide := &models.Slide{ID: uuid.New(), ModuleID: module.ID, LessonID: lessonID, SlideIndex: i}
		m.slides[slide.ID] = slide
		m.captions[slide.ID] = cues
		slides = append(slides, slide)
	}
	return module, slides
}

func (m *MockContentRepository) FindModule(ctx context.Context, moduleID uuid.UUID) (*models.CourseModule, error) {
	if m.err != nil {
		return nil, m.err
	}
	if module, ok := m.modules[moduleID]; ok {
		return module, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockContentRepository) FindSlide(ctx context.Context, slideID uuid.UUID) (*models.Slide, error) {
	if m.err != nil {
		return nil, m.err
	}
	if slide, ok := m.slides[slideID]; ok {
		return slide, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockContentRepository) SumCaptionSeconds(ctx context.Context, slideID uuid.UUID) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.sumCalls++
	total := 0
	for _, s := range m.captions[slideID] {
		total += s
	}
	return total, nil
}

func (m *MockContentRepository) CountModules(ctx context.Context, courseID uuid.UUID) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, module := range m.modules {
		if module.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (m *MockContentRepository) CountSlides(ctx context.Context, moduleID uuid.UUID) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, slide := range m.slides {
		if slide.ModuleID == moduleID {
			n++
		}
	}
	return n, nil
}

type slideKey struct{ user, slide uuid.UUID }
type moduleKey struct{ user, module uuid.UUID }

// MockProgressRepository mirrors the clamping and roll-up of the gorm repository
type MockProgressRepository struct {
	mu      sync.Mutex
	slides  map[slideKey]*models.SlideProgress
	modules map[moduleKey]*models.ModuleProgress
	err     error
}

func NewMockProgressRepository() *MockProgressRepository {
	return &MockProgressRepository{
		slides:  make(map[slideKey]*models.SlideProgress),
		modules: make(map[moduleKey]*models.ModuleProgress),
	}
}

func (m *MockProgressRepository) seed(p repository.StartSlideParams) (*models.SlideProgress, *models.ModuleProgress) {
	sk := slideKey{p.UserID, p.SlideID}
	slide, ok := m.slides[sk]
	if !ok {
		slide = &models.SlideProgress{UserID: p.UserID, SlideID: p.SlideID, ModuleID: p.ModuleID, LessonID: p.LessonID, SlideIndex: p.SlideIndex, StartedAt: p.Now}
		m.slides[sk] = slide
	}
	mk := moduleKey{p.UserID, p.ModuleID}
	module, ok := m.modules[mk]
	if !ok {
		module = &models.ModuleProgress{UserID: p.UserID, ModuleID: p.ModuleID, CourseID: p.CourseID, ModuleIndex: p.ModuleIndex}
		m.modules[mk] = module
	}
	return slide, module
}

func (m *MockProgressRepository) StartSlide(ctx context.Context, p repository.StartSlideParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seed(p)
	return nil
}

func (m *MockProgressRepository) RecordSlide(ctx context.Context, p repository.RecordSlideParams) (*repository.RecordSlideResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	slide, module := m.seed(p.StartSlideParams)
	slide.EffectiveSeconds = ledger.ClampSeconds(slide.EffectiveSeconds, p.IncrementSeconds, p.RequiredSeconds)
	slide.Completed = true

	total, done := 0, 0
	for k, s := range m.slides {
		if k.user == p.UserID && s.ModuleID == p.ModuleID {
			total += s.EffectiveSeconds
			if s.Completed {
				done++
			}
		}
	}
	module.TotalEffectiveSeconds = total
	if p.SlideIndex > module.HighestSlideIndexReached {
		module.HighestSlideIndexReached = p.SlideIndex
	}
	if p.CatalogSlides > 0 && done >= p.CatalogSlides {
		module.Completed = true
	}
	return &repository.RecordSlideResult{Slide: *slide, Module: *module}, nil
}

func (m *MockProgressRepository) FindSlideProgress(ctx context.Context, userID, slideID uuid.UUID) (*models.SlideProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slide, ok := m.slides[slideKey{userID, slideID}]; ok {
		cp := *slide
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockProgressRepository) ListModuleProgress(ctx context.Context, userID, courseID uuid.UUID) ([]models.ModuleProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ModuleProgress
	for k, module := range m.modules {
		if k.user == userID && module.CourseID == courseID {
			out = append(out, *module)
		}
	}
	return out, nil
}

// SetModule seeds a module roll-up directly.
func (m *MockProgressRepository) SetModule(row models.ModuleProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.ModuleID == uuid.Nil {
		row.ModuleID = uuid.New()
	}
	m.modules[moduleKey{row.UserID, row.ModuleID}] = &row
}

type statusKey struct{ user, course uuid.UUID }

// MockCourseStatusRepository keeps set-if-null semantics and a guarded,
// mutex-protected submission flip.
type MockCourseStatusRepository struct {
	mu     sync.Mutex
	rows   map[statusKey]*models.CourseStatus
	audits []models.SubmissionAudit
	err    error
}

func NewMockCourseStatusRepository() *MockCourseStatusRepository {
	return &MockCourseStatusRepository{rows: make(map[statusKey]*models.CourseStatus)}
}

func (m *MockCourseStatusRepository) ensure(userID, courseID uuid.UUID) *models.CourseStatus {
	k := statusKey{userID, courseID}
	row, ok := m.rows[k]
	if !ok {
		row = &models.CourseStatus{ID: uint(len(m.rows) + 1), UserID: userID, CourseID: courseID, Status: ledger.StatusInProgress}
		m.rows[k] = row
	}
	return row
}

func (m *MockCourseStatusRepository) snapshot(row *models.CourseStatus) *models.CourseStatus {
	row.Status = ledger.DeriveStatus(row.Facts())
	cp := *row
	return &cp
}

func (m *MockCourseStatusRepository) Ensure(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot(m.ensure(userID, courseID)), nil
}

func (m *MockCourseStatusRepository) Find(ctx context.Context, userID, courseID uuid.UUID) (*models.CourseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[statusKey{userID, courseID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *MockCourseStatusRepository) SetCompletedAt(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.CourseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row := m.ensure(userID, courseID)
	if row.CompletedAt == nil {
		row.CompletedAt = &at
	}
	return m.snapshot(row), nil
}

func (m *MockCourseStatusRepository) SetExamPassed(ctx context.Context, userID, courseID uuid.UUID, score *int, at time.Time) (*models.CourseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row := m.ensure(userID, courseID)
	if row.PassedAt == nil {
		row.ExamPassed = true
		row.ExamScore = score
		row.PassedAt = &at
	}
	return m.snapshot(row), nil
}

func (m *MockCourseStatusRepository) SetPaidAt(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.CourseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row := m.ensure(userID, courseID)
	if row.PaidAt == nil {
		row.PaidAt = &at
	}
	return m.snapshot(row), nil
}

func (m *MockCourseStatusRepository) MarkSubmitted(ctx context.Context, userID, courseID uuid.UUID, at time.Time) (*models.SubmissionAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[statusKey{userID, courseID}]
	if !ok || !ledger.ReadyForSubmission(row.Facts()) {
		return nil, nil
	}
	row.DMVSubmittedAt = &at
	row.Status = ledger.StatusDMVSubmitted
	audit := models.SubmissionAudit{ID: uuid.New(), UserID: userID, CourseID: courseID, Outcome: models.SubmissionPending, CreatedAt: at}
	m.audits = append(m.audits, audit)
	return &audit, nil
}

func (m *MockCourseStatusRepository) ListSubmissionAudits(ctx context.Context, courseID uuid.UUID, limit int) ([]models.SubmissionAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SubmissionAudit
	for _, a := range m.audits {
		if a.CourseID == courseID {
			out = append(out, a)
		}
	}
	return out, nil
}

type MockDispatcher struct {
	mu     sync.Mutex
	events []models.SubmissionEvent
	err    error
}

func (d *MockDispatcher) Dispatch(ctx context.Context, evt models.SubmissionEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return d.err
}

func (d *MockDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

var errStoreDown = errors.New("connection refused")
