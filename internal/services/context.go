package services

import "context"

type contextKey string

const (
	runIDKey contextKey = "run_id"
	taskKey  contextKey = "task"
	userKey  contextKey = "user"
)

// WithRunID annotates context with the batch run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the batch run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTask annotates context with the task label (e.g. MEDIA_user).
func WithTask(ctx context.Context, task string) context.Context {
	if task == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, task)
}

// TaskFromContext returns the task label if present.
func TaskFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithUser annotates context with the active pool user name.
func WithUser(ctx context.Context, user string) context.Context {
	if user == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the pool user name if present.
func UserFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(userKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
