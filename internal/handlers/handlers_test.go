package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/permitcourse/course-backend/internal/ledger"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/middleware"
	"github.com/permitcourse/course-backend/internal/models"
	"github.com/permitcourse/course-backend/internal/repository"
	"github.com/permitcourse/course-backend/internal/service"
	"github.com/permitcourse/course-backend/internal/storage"
	"github.com/permitcourse/course-backend/internal/submission"
	"github.com/permitcourse/course-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "test-secret-key-for-testing-only"
	testWebhookSecret = "test-webhook-secret"
	testThreshold     = 60
)

type fakeReceipts struct {
	objects map[string][]byte
}

func (f *fakeReceipts) GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectStat, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ObjectStat{}, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectStat{ContentType: "application/json", Size: int64(len(data))}, nil
}

type testServer struct {
	app      *fiber.App
	fixture  *testutil.CourseFixture
	receipts *fakeReceipts
}

// newTestServer seeds a two-module course. Module 0 has one slide worth 60
// seconds, module 1 has one slide worth 30.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewTestDB(t)
	fixture := testutil.NewTestHelper(t).SeedCourse(db, [][][]int{
		{{20, 40}},
		{{30}},
	})

	content := repository.NewContentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	statusRepo := repository.NewCourseStatusRepository(db)

	log := logger.Nop()
	progress := service.NewProgressService(content, progressRepo, nil, testThreshold)
	statuses := service.NewCourseStatusService(statusRepo, progress, submission.NewDispatcher(nil, nil, log), nil, log)
	navigation := service.NewNavigationService(content, progressRepo, statusRepo)

	receipts := &fakeReceipts{objects: map[string][]byte{}}
	app := fiber.New()
	app.Use(requestid.New())
	Routes{
		Progress:  NewProgressHandler(progress, log),
		Course:    NewCourseHandler(statuses, navigation, log),
		Payment:   NewPaymentHandler(statuses, testWebhookSecret, log),
		Admin:     NewAdminHandler(statuses, receipts, log),
		Health:    NewHealthHandler(nil),
		JWTSecret: testJWTSecret,
	}.Mount(app)

	return &testServer{app: app, fixture: fixture, receipts: receipts}
}

func signToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) slideBody(module int) map[string]interface{} {
	m := s.fixture.Modules[module]
	slide := s.fixture.Slides[m.ID][0]
	return map[string]interface{}{
		"module_id":   m.ID.String(),
		"lesson_id":   slide.LessonID.String(),
		"slide_id":    slide.ID.String(),
		"slide_index": slide.SlideIndex,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	courseID := s.fixture.CourseID.String()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"no token", http.MethodGet, "/api/courses/" + courseID + "/status", ""},
		{"garbage token", http.MethodGet, "/api/courses/" + courseID + "/status", "not-a-jwt"},
		{"start slide", http.MethodPost, "/api/progress/slides/start", ""},
		{"timeline", http.MethodGet, "/api/courses/" + courseID + "/timeline", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.NotEmpty(t, body["code"])
		})
	}
}

func TestStartSlideValidation(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, uuid.New(), "")

	code, body := s.do(t, http.MethodPost, "/api/progress/slides/start", token, map[string]interface{}{
		"module_id":   "nope",
		"slide_index": -1,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_failed", body["code"])
	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok, "fields missing: %v", body)
	assert.Contains(t, fields, "module_id")
	assert.Contains(t, fields, "slide_id")
	assert.Contains(t, fields, "slide_index")
}

func TestUnknownSlideIsNotFound(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, uuid.New(), "")

	req := s.slideBody(0)
	req["slide_id"] = uuid.NewString()
	code, body := s.do(t, http.MethodPost, "/api/progress/slides/start", token, req)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "slide_not_found", body["code"])
}

func TestRequiredSecondsComesFromCaptions(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, uuid.New(), "")
	slide := s.fixture.Slides[s.fixture.Modules[0].ID][0]

	code, body := s.do(t, http.MethodGet, "/api/progress/slides/"+slide.ID.String()+"/required", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 60, body["required_seconds"])

	code, _ = s.do(t, http.MethodGet, "/api/progress/slides/not-a-uuid/required", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCompleteSlideClampsToRequired(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, uuid.New(), "")

	code, started := s.do(t, http.MethodPost, "/api/progress/slides/start", token, s.slideBody(0))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, s.slideBody(0)["slide_id"], started["slide_id"])
	assert.EqualValues(t, 0, started["effective_seconds"])
	assert.Equal(t, false, started["completed"])

	for i := 0; i < 3; i++ {
		req := s.slideBody(0)
		req["increment_seconds"] = 40
		code, _ = s.do(t, http.MethodPost, "/api/progress/slides/complete", token, req)
		require.Equal(t, http.StatusOK, code)
	}

	code, body := s.do(t, http.MethodGet, "/api/courses/"+s.fixture.CourseID.String()+"/summary", token, nil)
	require.Equal(t, http.StatusOK, code)
	summary := body["summary"].(map[string]interface{})
	assert.EqualValues(t, 60, summary["total_effective_seconds"])
	assert.Equal(t, true, summary["eligible_for_exam"])
	assert.EqualValues(t, 1, body["completed_modules"])
	assert.EqualValues(t, 2, body["total_modules"])
	assert.EqualValues(t, 50, body["progress_percent"])
}

func TestNavigationGating(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, uuid.New(), "")
	base := "/api/courses/" + s.fixture.CourseID.String()

	code, body := s.do(t, http.MethodGet, base+"/navigation?target=1", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["allowed"])

	// Writes on a locked module are refused, not just hidden.
	skip := s.slideBody(1)
	skip["increment_seconds"] = 30
	code, body = s.do(t, http.MethodPost, "/api/progress/slides/complete", token, skip)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "module_locked", body["code"])
	code, _ = s.do(t, http.MethodPost, "/api/progress/slides/start", token, s.slideBody(1))
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodGet, base+"/timeline", token, nil)
	require.Equal(t, http.StatusOK, code)
	segments := body["segments"].([]interface{})
	assert.Equal(t, false, segments[1].(map[string]interface{})["completed"])

	req := s.slideBody(0)
	req["increment_seconds"] = 60
	code, _ = s.do(t, http.MethodPost, "/api/progress/slides/complete", token, req)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, base+"/navigation?target=1", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["allowed"])

	code, _ = s.do(t, http.MethodGet, base+"/navigation?target=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, base+"/timeline", token, nil)
	require.Equal(t, http.StatusOK, code)
	segments, ok := body["segments"].([]interface{})
	require.True(t, ok)
	require.Len(t, segments, 4)
	assert.Equal(t, true, segments[0].(map[string]interface{})["completed"])
	assert.Equal(t, false, segments[1].(map[string]interface{})["completed"])
	assert.Equal(t, false, segments[2].(map[string]interface{})["unlocked"], "exam opens only after the last module")
}

func TestCompleteBelowThresholdIsNotAnError(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, uuid.New(), "")

	code, body := s.do(t, http.MethodPost, "/api/courses/"+s.fixture.CourseID.String()+"/complete", token, nil)
	require.Equal(t, http.StatusOK, code)
	status := body["status"].(map[string]interface{})
	assert.Equal(t, false, status["course_complete"])
	assert.Equal(t, string(ledger.StatusInProgress), status["status"])
}

func TestPaymentWebhookSecret(t *testing.T) {
	s := newTestServer(t)
	payload := map[string]interface{}{
		"user_id":   uuid.NewString(),
		"course_id": s.fixture.CourseID.String(),
	}

	code, _ := s.do(t, http.MethodPost, "/api/payments/webhook", "", payload)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook", "", payload, "X-Webhook-Secret", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := s.do(t, http.MethodPost, "/api/payments/webhook", "", payload, "X-Webhook-Secret", testWebhookSecret)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["paid"])

	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook", "", map[string]interface{}{"user_id": "x"}, "X-Webhook-Secret", testWebhookSecret)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFullCourseFlowSubmitsOnce(t *testing.T) {
	s := newTestServer(t)
	userID := uuid.New()
	token := signToken(t, userID, "")
	courseID := s.fixture.CourseID.String()
	base := "/api/courses/" + courseID

	req := s.slideBody(0)
	req["increment_seconds"] = 60
	code, _ := s.do(t, http.MethodPost, "/api/progress/slides/complete", token, req)
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, base+"/complete", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(ledger.StatusCourseCompleted), body["status"].(map[string]interface{})["status"])

	// Enough study time, but module 1 is unfinished.
	code, body = s.do(t, http.MethodPost, base+"/exam", token, map[string]interface{}{"passed": true, "score": 90})
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "exam_locked", body["code"])

	req = s.slideBody(1)
	req["increment_seconds"] = 30
	code, _ = s.do(t, http.MethodPost, "/api/progress/slides/complete", token, req)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, base+"/exam", token, map[string]interface{}{"passed": false, "score": 40})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["exam_passed"])

	code, body = s.do(t, http.MethodPost, base+"/exam", token, map[string]interface{}{"passed": true, "score": 90})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(ledger.StatusCompletedUnpaid), body["status"])

	code, body = s.do(t, http.MethodPost, "/api/payments/webhook", "", map[string]interface{}{
		"user_id":   userID.String(),
		"course_id": courseID,
	}, "X-Webhook-Secret", testWebhookSecret)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(ledger.StatusDMVSubmitted), body["status"])
	assert.Equal(t, true, body["dmv_submitted"])

	// A replayed webhook changes nothing.
	code, _ = s.do(t, http.MethodPost, "/api/payments/webhook", "", map[string]interface{}{
		"user_id":   userID.String(),
		"course_id": courseID,
	}, "X-Webhook-Secret", testWebhookSecret)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, base+"/status", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(ledger.StatusDMVSubmitted), body["status"])

	code, _ = s.do(t, http.MethodGet, "/api/admin/courses/"+courseID+"/submissions", token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	admin := signToken(t, uuid.New(), middleware.RoleAdmin)
	code, body = s.do(t, http.MethodGet, "/api/admin/courses/"+courseID+"/submissions", admin, nil)
	require.Equal(t, http.StatusOK, code)
	rows, ok := body["submissions"].([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, userID.String(), row["user_id"])
	assert.Equal(t, string(models.SubmissionPending), row["outcome"])
}

func TestReceiptDownload(t *testing.T) {
	s := newTestServer(t)
	admin := signToken(t, uuid.New(), middleware.RoleAdmin)
	userID, auditID := uuid.New(), uuid.New()

	key, err := submission.ReceiptKey(models.SubmissionEvent{AuditID: auditID, UserID: userID, CourseID: s.fixture.CourseID})
	require.NoError(t, err)
	s.receipts.objects[key] = []byte(`{"audit_id":"` + auditID.String() + `"}`)

	path := "/api/admin/courses/" + s.fixture.CourseID.String() + "/users/" + userID.String() + "/submissions/"
	code, body := s.do(t, http.MethodGet, path+auditID.String()+"/receipt", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, auditID.String(), body["audit_id"])

	code, _ = s.do(t, http.MethodGet, path+uuid.NewString()+"/receipt", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
