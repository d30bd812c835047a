package logging

import (
	"context"
	"log/slog"

	"mediapool/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for batch run identifiers.
	FieldRunID = "run_id"
	// FieldUser is the standardized structured logging key for pool user names.
	FieldUser = "user"
	// FieldTask is the standardized structured logging key for sync task labels.
	FieldTask = "task"
	// FieldDirection is the standardized structured logging key for transfer direction (forward/backsync).
	FieldDirection = "direction"
	// FieldBin is the standardized structured logging key for dated bin names.
	FieldBin = "bin"
	// FieldEventType is the standardized structured logging key describing what happened.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key suggesting a next step.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if user, ok := services.UserFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldUser, user))
	}
	if task, ok := services.TaskFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTask, task))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
