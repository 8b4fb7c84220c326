package flow

import (
	"context"
	"time"

	"wellness-quiz-engine/internal/domain"
)

// Button is a labeled interactive button carrying a callback token.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Event is one incoming interaction from the messaging surface: the tap of a
// button bound to a previously sent message.
type Event struct {
	UserID    string
	MessageID string
	Token     string
}

// Messenger abstracts the messaging surface. Send calls return the new
// message's identifier, which the controller records for fencing.
type Messenger interface {
	SendText(ctx context.Context, userID, text string, buttons []Button) (string, error)
	SendPhoto(ctx context.Context, userID, image, caption string, buttons []Button) (string, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error
}

// SessionStore persists per-user session state. It is the only
// synchronization boundary for a user's in-flight attempt.
type SessionStore interface {
	Get(ctx context.Context, userID string) (domain.SessionState, bool, error)
	Set(ctx context.Context, userID string, state domain.SessionState) error
	Clear(ctx context.Context, userID string) error
}

// EventLogger receives fire-and-forget notifications. Implementations must
// swallow their own failures.
type EventLogger interface {
	QuizStarted(ctx context.Context, userID, quiz string)
}

// TipGenerator may return a short supplementary string for the final tag
// set; absence or failure degrades to no tip.
type TipGenerator interface {
	Tip(ctx context.Context, quiz string, tags []string) (string, error)
}

// InteractionGuard reports the remaining cooldown before a user may start
// the same quiz again. Zero means go ahead.
type InteractionGuard interface {
	Cooldown(ctx context.Context, userID, key string) (time.Duration, error)
}

// ImageResolver turns an image reference from a definition into something
// the messenger can send. Resolution failure falls back to a text-only
// render, never aborting the quiz.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// HomeFunc hands control back to the hosting bot's root menu.
type HomeFunc func(ctx context.Context, userID string) error
