package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	activityKey  contextKey = "activity"
	requestIDKey contextKey = "request_id"
)

// WithTaskID annotates context with a render task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the render task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithActivity annotates context with the measurement activity identifier.
func WithActivity(ctx context.Context, activity string) context.Context {
	if activity == "" {
		return ctx
	}
	return context.WithValue(ctx, activityKey, activity)
}

// ActivityFromContext returns the activity identifier if present.
func ActivityFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(activityKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
