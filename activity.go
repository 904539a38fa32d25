package talyn

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventSignUp             ActivityEventType = "auth.signup"
	ActivityEventLogout             ActivityEventType = "auth.logout"
	ActivityEventSessionExpired     ActivityEventType = "auth.session.expired"
	ActivityEventInvitationAccepted ActivityEventType = "invitation.accepted"
	ActivityEventInvitationDeclined ActivityEventType = "invitation.declined"
	ActivityEventOnboardingStep     ActivityEventType = "onboarding.step.completed"
)

// ActivityEvent captures audit-friendly information about a session action.
type ActivityEvent struct {
	ID         uuid.UUID
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
