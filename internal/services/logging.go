package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// ServiceLogger writes one structured line per quiz or attempt operation.
type ServiceLogger struct {
	logger *slog.Logger
	config LogConfig
}

type LogConfig struct {
	Service   string
	Component string
	// MaxFieldErrors caps how many validation failures are listed per line.
	MaxFieldErrors int
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	if config.MaxFieldErrors <= 0 {
		config.MaxFieldErrors = 5
	}
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
		config: config,
	}
}

func (l *ServiceLogger) Logger() *slog.Logger {
	return l.logger
}

// outcome classifies an operation error. Expected student and staff mistakes
// (late starts, exhausted limits, repeated submits) are not server errors.
func outcome(err error) (slog.Level, string) {
	var conflict *AttemptConflictError
	switch {
	case err == nil:
		return slog.LevelInfo, "ok"
	case errors.As(err, &conflict), errors.Is(err, ErrAttemptAlreadySubmitted):
		return slog.LevelInfo, "already_terminal"
	case errors.Is(err, ErrQuizNotAvailable):
		return slog.LevelInfo, "not_available"
	case errors.Is(err, ErrAttemptLimitReached):
		return slog.LevelInfo, "limit_reached"
	case errors.Is(err, ErrAttemptContention):
		return slog.LevelWarn, "contention"
	case IsValidation(err), IsBusinessRule(err):
		return slog.LevelWarn, "rejected"
	case IsUnauthorized(err):
		return slog.LevelWarn, "forbidden"
	case IsNotFound(err):
		return slog.LevelInfo, "not_found"
	case IsConflict(err):
		return slog.LevelInfo, "conflict"
	default:
		return slog.LevelError, "error"
	}
}

func (l *ServiceLogger) LogOperation(ctx context.Context, operation, userID string, resourceID uint, resourceType string, duration time.Duration, err error) {
	level, result := outcome(err)

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String(resourceType+"_id", formatID(resourceID)),
		slog.String("result", result),
		slog.Duration("duration", duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	var fieldErrs ValidationErrors
	var ruleErr *BusinessRuleError
	var permErr *PermissionError
	switch {
	case errors.As(err, &fieldErrs):
		attrs = append(attrs, l.fieldErrorAttrs(fieldErrs)...)
	case errors.As(err, &ruleErr):
		attrs = append(attrs, slog.String("rule", ruleErr.Rule))
	case errors.As(err, &permErr):
		attrs = append(attrs, slog.String("denied_action", permErr.Action))
	}

	l.logger.LogAttrs(ctx, level, operation, attrs...)
}

func (l *ServiceLogger) fieldErrorAttrs(errs ValidationErrors) []slog.Attr {
	attrs := []slog.Attr{slog.Int("field_errors", len(errs))}
	fields := make([]string, 0, min(len(errs), l.config.MaxFieldErrors))
	for i, fe := range errs {
		if i == l.config.MaxFieldErrors {
			break
		}
		fields = append(fields, fe.Field+": "+fe.Message)
	}
	return append(attrs, slog.Any("fields", fields))
}

func formatID(id uint) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Operation times a single service call; finish it with LogResult.
type Operation struct {
	logger    *ServiceLogger
	ctx       context.Context
	name      string
	userID    string
	startedAt time.Time
}

func (l *ServiceLogger) WithOperation(ctx context.Context, name, userID string) *Operation {
	return &Operation{
		logger:    l,
		ctx:       ctx,
		name:      name,
		userID:    userID,
		startedAt: time.Now(),
	}
}

func (op *Operation) LogResult(resourceID uint, resourceType string, err error) {
	op.logger.LogOperation(op.ctx, op.name, op.userID, resourceID, resourceType, time.Since(op.startedAt), err)
}
