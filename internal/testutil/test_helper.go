package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TestHelper provides fixtures for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// NewTestDB opens a private in-memory SQLite database with every table
// migrated. Each call gets its own database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	// One connection serializes the transactions SQLite cannot lock by row.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// CourseFixture is a small catalog: modules in order, each with slides, each
// slide with caption seconds.
type CourseFixture struct {
	CourseID uuid.UUID
	Modules  []models.CourseModule
	Slides   map[uuid.UUID][]models.Slide
}

// SeedCourse writes a course whose module i has len(captions[i]) slides and
// slide j of module i has captions[i][j] as its caption durations.
func (h *TestHelper) SeedCourse(db *gorm.DB, captions [][][]int) *CourseFixture {
	h.t.Helper()

	fx := &CourseFixture{CourseID: uuid.New(), Slides: map[uuid.UUID][]models.Slide{}}
	for i, slides := range captions {
		module := models.CourseModule{
			CourseID:    fx.CourseID,
			ModuleIndex: i,
			Title:       fmt.Sprintf("Module %d", i+1),
		}
		if err := db.Create(&module).Error; err != nil {
			h.t.Fatalf("seed module: %v", err)
		}
		fx.Modules = append(fx.Modules, module)

		lessonID := uuid.New()
		for j, cues := range slides {
			slide := models.Slide{ModuleID: module.ID, LessonID: lessonID, SlideIndex: j}
			if err := db.Create(&slide).Error; err != nil {
				h.t.Fatalf("seed slide: %v", err)
			}
			fx.Slides[module.ID] = append(fx.Slides[module.ID], slide)

			for k, seconds := range cues {
				caption := models.SlideCaption{SlideID: slide.ID, Position: k, Seconds: seconds, Text: "cue"}
				if err := db.Create(&caption).Error; err != nil {
					h.t.Fatalf("seed caption: %v", err)
				}
			}
		}
	}
	return fx
}

// CreateTestCourseStatus builds an unsaved status row with the given facts.
func (h *TestHelper) CreateTestCourseStatus(userID, courseID uuid.UUID, completed, passed, paid bool) *models.CourseStatus {
	now := time.Now().UTC()
	row := &models.CourseStatus{UserID: userID, CourseID: courseID}
	if completed {
		row.CompletedAt = &now
	}
	if passed {
		row.ExamPassed = true
		row.PassedAt = &now
	}
	if paid {
		row.PaidAt = &now
	}
	row.Status = row.ToResponse().Status
	return row
}

// SetupTestEnv sets required environment variables for testing
func (h *TestHelper) SetupTestEnv() {
	h.t.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")
	h.t.Setenv("PAYMENT_WEBHOOK_SECRET", "test-webhook-secret")
}

// AssertError checks if an error occurred when it should (or shouldn't)
func (h *TestHelper) AssertError(err error, shouldErr bool, testName string) {
	h.t.Helper()
	if (err != nil) != shouldErr {
		if shouldErr {
			h.t.Errorf("%s: expected error but got nil", testName)
		} else {
			h.t.Errorf("%s: unexpected error: %v", testName, err)
		}
	}
}

// GetRecordNotFoundError returns gorm's not-found sentinel for mocks.
func GetRecordNotFoundError() error {
	return gorm.ErrRecordNotFound
}
