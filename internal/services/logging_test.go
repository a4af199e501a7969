package services

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		err    error
		level  slog.Level
		result string
	}{
		{nil, slog.LevelInfo, "ok"},
		{&AttemptConflictError{Err: ErrAttemptAlreadySubmitted}, slog.LevelInfo, "already_terminal"},
		{fmt.Errorf("start: %w", ErrQuizNotAvailable), slog.LevelInfo, "not_available"},
		{ErrAttemptLimitReached, slog.LevelInfo, "limit_reached"},
		{ErrAttemptContention, slog.LevelWarn, "contention"},
		{ValidationErrors{}.Add("title", "is required", nil), slog.LevelWarn, "rejected"},
		{ErrSchedulingConflict, slog.LevelWarn, "rejected"},
		{NewPermissionError("bob", 1, "attempt", "submit", "not the owner"), slog.LevelWarn, "forbidden"},
		{ErrAttemptNotFound, slog.LevelInfo, "not_found"},
		{ErrQuizHasAttempts, slog.LevelInfo, "conflict"},
		{fmt.Errorf("boom"), slog.LevelError, "error"},
	}

	for _, tt := range tests {
		level, result := outcome(tt.err)
		assert.Equal(t, tt.level, level, "%v", tt.err)
		assert.Equal(t, tt.result, result, "%v", tt.err)
	}
}
