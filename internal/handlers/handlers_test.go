package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/enrollment"
	"github.com/SAP-F-2025/quiz-engine/internal/events"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/notify"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories/memory"
	"github.com/SAP-F-2025/quiz-engine/internal/scheduler"
	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
	"github.com/SAP-F-2025/quiz-engine/internal/validator"
)

var (
	teacher = models.Caller{ID: "t1", Role: models.RoleTeacher}
	alice   = models.Caller{ID: "alice", Role: models.RoleStudent}
	carol   = models.Caller{ID: "carol", Role: models.RoleStudent}
)

type apiHarness struct {
	router *gin.Engine
	clock  *clock.Fake
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger := utils.FromSlogLogger(slogger)
	store := memory.New()
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	notifier := notify.NewEventNotifier(events.NewMockEventPublisher(slogger), clk, slogger)

	roster := enrollment.NewStaticChecker()
	roster.Enroll("bio-101", alice.ID)

	v := validator.New()
	analytics := services.NewAnalyticsService(store, clk, slogger)
	attempts := services.NewAttemptService(store, roster, analytics, notifier, clk, slogger, v)
	sched := scheduler.New(clk, store.Quiz(), store.Trigger(), attempts, notifier, slogger, 0)
	quizzes := services.NewQuizService(store, sched, notifier, clk, slogger, v)
	t.Cleanup(sched.Stop)

	router := gin.New()
	router.Use(utils.LoggerMiddleware(logger), utils.ContextLogger(logger))
	NewHandlerManager(services.NewServiceManager(quizzes, attempts, analytics), logger).
		SetupRoutes(router, HeaderAuthMiddleware())

	return &apiHarness{router: router, clock: clk}
}

func (h *apiHarness) do(t *testing.T, method, path string, body interface{}, caller *models.Caller) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set("X-User-ID", caller.ID)
		req.Header.Set("X-User-Role", string(caller.Role))
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func quizPayload(published bool) map[string]interface{} {
	return map[string]interface{}{
		"course_id":     "bio-101",
		"title":         "Cells",
		"passing_score": 50,
		"is_published":  published,
		"questions": []map[string]interface{}{{
			"id":             "q1",
			"type":           "multiple_choice",
			"text":           "Which organelle makes ATP?",
			"points":         2,
			"options":        []string{"Mitochondria", "Ribosome"},
			"correct_answer": "Mitochondria",
		}},
	}
}

func (h *apiHarness) createQuiz(t *testing.T, published bool) uint {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/v1/quizzes", quizPayload(published), &teacher)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Quiz](t, w).ID
}

func TestHealthCheck(t *testing.T) {
	h := newAPIHarness(t)
	w := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quiz-engine")
}

func TestRequestIDIsAssignedOrEchoed(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, w.Header().Get(utils.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(utils.RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(utils.RequestIDHeader))
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/quizzes", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/quizzes", nil, &models.Caller{ID: "mallory", Role: "root"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	quizID := h.createQuiz(t, true)
	quizPath := fmt.Sprintf("/api/v1/quizzes/%d", quizID)

	w := h.do(t, http.MethodGet, quizPath, nil, &alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "correct_answer")

	w = h.do(t, http.MethodPost, quizPath+"/attempts", nil, &alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	attempt := decode[models.Attempt](t, w)
	attemptPath := fmt.Sprintf("/api/v1/attempts/%d", attempt.ID)

	w = h.do(t, http.MethodPut, attemptPath+"/answers/q1", map[string]interface{}{"answer": "Mitochondria"}, &alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodPut, attemptPath+"/answers/q1", map[string]interface{}{"answer": 42}, &alice)
	assert.Equal(t, http.StatusBadRequest, w.Code, "answer shape is checked")

	w = h.do(t, http.MethodPut, attemptPath+"/answers/q9", map[string]interface{}{"answer": "x"}, &alice)
	assert.Equal(t, http.StatusNotFound, w.Code)

	h.clock.Advance(90 * time.Second)
	w = h.do(t, http.MethodPost, attemptPath+"/submit", nil, &alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[models.Attempt](t, w)
	assert.Equal(t, models.AttemptSubmitted, first.Status)
	assert.Equal(t, 100.0, first.PercentageScore)
	assert.Equal(t, 90, first.TimeSpent)

	w = h.do(t, http.MethodPost, attemptPath+"/submit", nil, &alice)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[models.Attempt](t, w)
	assert.Equal(t, first.SubmittedAt, second.SubmittedAt)
	assert.Equal(t, first.Version, second.Version)

	w = h.do(t, http.MethodPut, attemptPath+"/answers/q1", map[string]interface{}{"answer": "Ribosome"}, &alice)
	require.Equal(t, http.StatusConflict, w.Code)
	conflict := decode[struct {
		Code    string         `json:"code"`
		Details models.Attempt `json:"details"`
	}](t, w)
	assert.Equal(t, "already_submitted", conflict.Code)
	assert.Equal(t, models.AttemptSubmitted, conflict.Details.Status)

	w = h.do(t, http.MethodGet, quizPath+"/analytics", nil, &teacher)
	require.Equal(t, http.StatusOK, w.Code)
	analytics := decode[models.QuizAnalytics](t, w)
	assert.Equal(t, 1, analytics.CompletionCount)
	assert.Equal(t, 1, analytics.PassCount)

	w = h.do(t, http.MethodGet, quizPath+"/results.xlsx", nil, &teacher)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "results.xlsx")
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestGradingOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	payload := quizPayload(true)
	payload["questions"] = []map[string]interface{}{{"id": "e1", "type": "essay", "text": "Explain osmosis.", "points": 5}}
	w := h.do(t, http.MethodPost, "/api/v1/quizzes", payload, &teacher)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	quizID := decode[models.Quiz](t, w).ID

	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/attempts", quizID), nil, &alice)
	require.Equal(t, http.StatusCreated, w.Code)
	attemptID := decode[models.Attempt](t, w).ID

	w = h.do(t, http.MethodPut, fmt.Sprintf("/api/v1/attempts/%d/answers/e1", attemptID), map[string]interface{}{"answer": "Water moves."}, &alice)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/attempts/%d/submit", attemptID), nil, &alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AttemptSubmittedPendingGrading, decode[models.Attempt](t, w).Status)

	gradePath := fmt.Sprintf("/api/v1/grading/attempts/%d", attemptID)
	grades := map[string]interface{}{"grades": map[string]interface{}{"e1": map[string]interface{}{"score": 4}}}

	w = h.do(t, http.MethodPost, gradePath, grades, &alice)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, gradePath, map[string]interface{}{"grades": map[string]interface{}{}}, &teacher)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, gradePath, grades, &teacher)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	graded := decode[models.Attempt](t, w)
	assert.Equal(t, models.AttemptSubmitted, graded.Status)
	assert.Equal(t, 4.0, graded.TotalScore)

	w = h.do(t, http.MethodPost, gradePath, grades, &teacher)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_gradable", decode[ErrorResponse](t, w).Code)
}

func TestServiceErrorStatusMapping(t *testing.T) {
	h := newAPIHarness(t)
	published := h.createQuiz(t, true)
	draft := h.createQuiz(t, false)

	w := h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/attempts", published), nil, &alice)
	require.Equal(t, http.StatusCreated, w.Code)

	opens := h.clock.Now().Add(2 * time.Hour)
	closes := h.clock.Now().Add(time.Hour)
	unordered := quizPayload(false)
	unordered["available_from"] = opens
	unordered["available_until"] = closes

	untitled := quizPayload(false)
	delete(untitled, "title")

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		caller   models.Caller
		wantCode int
		wantErr  string
	}{
		{"malformed id", http.MethodGet, "/api/v1/quizzes/abc", nil, teacher, http.StatusBadRequest, ""},
		{"unknown quiz", http.MethodGet, "/api/v1/quizzes/999", nil, teacher, http.StatusNotFound, "quiz_not_found"},
		{"unknown attempt", http.MethodGet, "/api/v1/attempts/999", nil, alice, http.StatusNotFound, "attempt_not_found"},
		{"draft hidden from students", http.MethodGet, fmt.Sprintf("/api/v1/quizzes/%d", draft), nil, alice, http.StatusNotFound, "quiz_not_found"},
		{"students cannot create", http.MethodPost, "/api/v1/quizzes", quizPayload(false), alice, http.StatusForbidden, ""},
		{"missing title", http.MethodPost, "/api/v1/quizzes", untitled, teacher, http.StatusBadRequest, "validation_failed"},
		{"window out of order", http.MethodPost, "/api/v1/quizzes", unordered, teacher, http.StatusUnprocessableEntity, "scheduling_conflict"},
		{"draft cannot be started", http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/attempts", draft), nil, alice, http.StatusConflict, "not_available"},
		{"not enrolled", http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/attempts", published), nil, carol, http.StatusForbidden, "not_enrolled"},
		{"analytics need staff", http.MethodGet, fmt.Sprintf("/api/v1/quizzes/%d/analytics", published), nil, alice, http.StatusForbidden, ""},
		{"quiz with attempts is locked", http.MethodDelete, fmt.Sprintf("/api/v1/quizzes/%d", published), nil, teacher, http.StatusConflict, "quiz_locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := tt.caller
			w := h.do(t, tt.method, tt.path, tt.body, &caller)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, w).Code)
			}
		})
	}
}

func TestHandleServiceErrorFallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	base := NewBaseHandler(utils.FromSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	tests := []struct {
		err      error
		wantCode int
	}{
		{fmt.Errorf("failed to apply: %w", services.ErrAttemptContention), http.StatusConflict},
		{services.ErrAttemptLimitReached, http.StatusConflict},
		{services.ErrQuizEmpty, http.StatusUnprocessableEntity},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())

		base.handleServiceError(c, tt.err)
		assert.Equal(t, tt.wantCode, w.Code, tt.err.Error())
	}
}
