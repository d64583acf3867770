package audit

import (
	"context"
	"time"

	"github.com/sentinel-rbac/sentinel/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// LogMutation records a data mutation event
	LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID *int64, status EventStatus, message string) error

	// Close flushes and closes the logger
	Close() error
}

// NopLogger is a logger that discards all events
type NopLogger struct{}

// NewNopLogger creates an audit logger that discards all events
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (l *NopLogger) Log(ctx context.Context, event *Event) error {
	return nil
}

func (l *NopLogger) LogMutation(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID *int64, status EventStatus, message string) error {
	return nil
}

func (l *NopLogger) Close() error {
	return nil
}

// buildMutationEvent assembles an event from context and arguments
func buildMutationEvent(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID *int64, status EventStatus, message string) *Event {
	return &Event{
		OccurredAt:   time.Now().UTC(),
		EventType:    eventType,
		Status:       status,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    observability.GetRequestID(ctx),
		Message:      message,
	}
}
