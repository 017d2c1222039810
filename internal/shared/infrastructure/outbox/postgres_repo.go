package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists outbox messages in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const insertOutbox = `
	INSERT INTO outbox (event_id, aggregate_type, aggregate_id, routing_key, payload, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
`

// Save inserts an outbox message outside any transaction.
func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	return r.pool.QueryRow(ctx, insertOutbox,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.RoutingKey,
		msg.Payload, msg.Metadata, msg.CreatedAt,
	).Scan(&msg.ID)
}

// InsertTx inserts an outbox message within an open transaction. Used by
// stores that must write state and events atomically.
func InsertTx(ctx context.Context, tx pgx.Tx, msg *Message) error {
	return tx.QueryRow(ctx, insertOutbox,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.RoutingKey,
		msg.Payload, msg.Metadata, msg.CreatedAt,
	).Scan(&msg.ID)
}

// GetUnpublished returns pending messages ready for publishing, oldest first.
func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := `
		SELECT id, event_id, aggregate_type, aggregate_id, routing_key, payload, metadata,
			created_at, published_at, next_retry_at, retry_count, last_error,
			dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
			AND dead_lettered_at IS NULL
			AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY id
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkPublished records a successful publish.
func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE id = $1`, id)
	return err
}

// MarkFailed records a failed publish attempt and schedules the retry.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3
		WHERE id = $1
	`, id, errMsg, nextRetryAt)
	return err
}

// MarkDead moves a message out of the retry loop permanently.
func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox
		SET dead_lettered_at = NOW(), dead_letter_reason = $2
		WHERE id = $1
	`, id, reason)
	return err
}

// DeleteOld removes published messages older than the retention window.
func (r *PostgresRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL
			AND published_at < NOW() - ($1 || ' days')::interval
	`, olderThanDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	messages := make([]*Message, 0)
	for rows.Next() {
		var m Message
		err := rows.Scan(
			&m.ID, &m.EventID, &m.AggregateType, &m.AggregateID, &m.RoutingKey,
			&m.Payload, &m.Metadata, &m.CreatedAt, &m.PublishedAt, &m.NextRetryAt,
			&m.RetryCount, &m.LastError, &m.DeadLetteredAt, &m.DeadLetterReason,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

var _ Repository = (*PostgresRepository)(nil)
