package postgres

import (
	"context"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"
)

// EventLog records quiz lifecycle events. It is fire-and-forget: insert
// failures are logged and never surface to the flow.
type EventLog struct {
	pool *pgxpool.Pool
}

func NewEventLog(pool *pgxpool.Pool) *EventLog {
	return &EventLog{pool: pool}
}

func (l *EventLog) QuizStarted(ctx context.Context, userID, quiz string) {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO quiz_events (user_id, quiz, kind) VALUES ($1, $2, 'quiz_start')`,
		userID, quiz)
	if err != nil {
		log.Printf("event log: quiz_start %s/%s: %v", quiz, userID, err)
	}
}
