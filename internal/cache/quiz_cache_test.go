package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories/memory"
)

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheService) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCacheService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCacheService) DeletePattern(ctx context.Context, pattern string) error {
	args := m.Called(ctx, pattern)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedQuizRepositoryReadThrough(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Quiz()
	quiz := &models.Quiz{Title: "Photosynthesis", CourseID: "bio"}
	require.NoError(t, store.Create(ctx, quiz))

	cacheSvc := new(MockCacheService)
	cacheSvc.On("Get", ctx, "quiz:definition:1", mock.Anything).Return(ErrCacheMiss).Once()
	cacheSvc.On("Set", ctx, "quiz:definition:1", mock.AnythingOfType("*models.Quiz"), time.Minute).Return(nil).Once()

	repo := NewCachedQuizRepository(store, cacheSvc, time.Minute, discardLogger())
	got, err := repo.GetByID(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis", got.Title)

	cacheSvc.AssertExpectations(t)
}

func TestCachedQuizRepositoryHit(t *testing.T) {
	ctx := context.Background()
	cacheSvc := new(MockCacheService)
	cacheSvc.On("Get", ctx, "quiz:definition:9", mock.Anything).
		Run(func(args mock.Arguments) {
			dest := args.Get(2).(*models.Quiz)
			dest.ID = 9
			dest.Title = "cached"
		}).
		Return(nil).Once()

	repo := NewCachedQuizRepository(memory.New().Quiz(), cacheSvc, time.Minute, discardLogger())
	got, err := repo.GetByID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Title)

	cacheSvc.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCachedQuizRepositoryInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Quiz()
	quiz := &models.Quiz{Title: "Cells"}
	require.NoError(t, store.Create(ctx, quiz))

	cacheSvc := new(MockCacheService)
	cacheSvc.On("Delete", ctx, "quiz:definition:1").Return(errors.New("redis down")).Once()
	cacheSvc.On("Delete", ctx, "quiz:definition:1").Return(nil).Once()

	repo := NewCachedQuizRepository(store, cacheSvc, time.Minute, discardLogger())
	quiz.Title = "Cells and tissues"
	require.NoError(t, repo.Update(ctx, quiz), "cache failures must not fail the write")
	require.NoError(t, repo.Delete(ctx, quiz.ID))

	cacheSvc.AssertExpectations(t)
}
