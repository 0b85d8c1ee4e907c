package postgres

import (
	"context"
	"errors"

	"github.com/Dhoini/billing-reconciliation/internal/domain"
	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventJournal - журнал обработанных вебхук событий Stripe в таблице processed_webhook_events
type EventJournal struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewEventJournal создает журнал поверх пула pgx
func NewEventJournal(db *pgxpool.Pool, log *logger.Logger) *EventJournal {
	return &EventJournal{db: db, log: log}
}

// IsProcessed проверяет, записано ли событие в журнал
func (j *EventJournal) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var id string
	err := j.db.QueryRow(ctx, `SELECT event_id FROM processed_webhook_events WHERE event_id = $1`, eventID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		j.log.Errorw("Failed to read webhook event journal", "error", err, "eventID", eventID)
		return false, domain.NewStoreError("read event journal", err)
	}
	return true, nil
}

// MarkProcessed записывает событие. Повторная запись того же id не ошибка.
func (j *EventJournal) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	tag, err := j.db.Exec(ctx, `
		INSERT INTO processed_webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`, eventID, eventType)
	if err != nil {
		j.log.Errorw("Failed to write webhook event journal", "error", err, "eventID", eventID)
		return domain.NewStoreError("write event journal", err)
	}
	if tag.RowsAffected() == 0 {
		j.log.Debugw("Webhook event already journaled", "eventID", eventID)
	}
	return nil
}
