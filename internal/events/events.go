// Package events carries user lifecycle notifications to the email
// consumers. Delivery is at-least-once; consumers deduplicate on EventID.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the authentication flow.
const (
	TypeUserVerifyEmail   = "USER_VERIFY_EMAIL"
	TypeUserWelcomeEmail  = "USER_WELCOME_EMAIL"
	TypeUserResetPassword = "USER_RESET_PASSWORD"
)

// Topics, one per event type so consumers subscribe independently.
const (
	TopicEmailVerify        = "email.verify"
	TopicEmailWelcome       = "email.welcome"
	TopicEmailResetPassword = "email.reset.password"
)

const (
	source  = "lovedev-api"
	version = "1.0"
)

// Event is the wire envelope for every published notification.
type Event struct {
	EventID       string         `json:"eventId"`
	EventType     string         `json:"eventType"`
	Timestamp     time.Time      `json:"timestamp"`
	Source        string         `json:"source"`
	Version       string         `json:"version"`
	CorrelationID string         `json:"correlationId,omitempty"`
	UserID        string         `json:"userId"`
	Data          map[string]any `json:"data,omitempty"`
}

// New builds an envelope for the given type with a fresh event id.
func New(eventType, userID, correlationID string, data map[string]any) Event {
	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Version:       version,
		CorrelationID: correlationID,
		UserID:        userID,
		Data:          data,
	}
}

// Topic maps an event type to its delivery topic.
func Topic(eventType string) string {
	switch eventType {
	case TypeUserVerifyEmail:
		return TopicEmailVerify
	case TypeUserWelcomeEmail:
		return TopicEmailWelcome
	case TypeUserResetPassword:
		return TopicEmailResetPassword
	default:
		return ""
	}
}

// Publisher delivers events to the bus. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}
