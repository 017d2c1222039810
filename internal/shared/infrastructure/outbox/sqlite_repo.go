package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository persists outbox messages in SQLite.
// Used for local development and tests.
type SQLiteRepository struct {
	dbConn *sql.DB
}

// NewSQLiteRepository creates a new repository.
func NewSQLiteRepository(dbConn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{dbConn: dbConn}
}

const insertSQLiteOutbox = `
	INSERT INTO outbox (event_id, aggregate_type, aggregate_id, routing_key, payload, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// Save inserts an outbox message outside any transaction.
func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	res, err := r.dbConn.ExecContext(ctx, insertSQLiteOutbox,
		msg.EventID.String(), msg.AggregateType, msg.AggregateID.String(), msg.RoutingKey,
		string(msg.Payload), string(msg.Metadata), msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	msg.ID, err = res.LastInsertId()
	return err
}

// InsertSQLiteTx inserts an outbox message within an open transaction.
func InsertSQLiteTx(ctx context.Context, tx *sql.Tx, msg *Message) error {
	res, err := tx.ExecContext(ctx, insertSQLiteOutbox,
		msg.EventID.String(), msg.AggregateType, msg.AggregateID.String(), msg.RoutingKey,
		string(msg.Payload), string(msg.Metadata), msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	msg.ID, err = res.LastInsertId()
	return err
}

// GetUnpublished returns pending messages ready for publishing, oldest first.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	query := `
		SELECT id, event_id, aggregate_type, aggregate_id, routing_key, payload, metadata,
			created_at, published_at, next_retry_at, retry_count, last_error,
			dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
			AND dead_lettered_at IS NULL
			AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id
		LIMIT ?
	`
	rows, err := r.dbConn.QueryContext(ctx, query, time.Now().UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkPublished records a successful publish.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.dbConn.ExecContext(ctx,
		`UPDATE outbox SET published_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	return err
}

// MarkFailed records a failed publish attempt and schedules the retry.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.dbConn.ExecContext(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?
	`, errMsg, nextRetryAt.UTC().Format(time.RFC3339Nano), id)
	return err
}

// MarkDead moves a message out of the retry loop permanently.
func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.dbConn.ExecContext(ctx, `
		UPDATE outbox
		SET dead_lettered_at = ?, dead_letter_reason = ?
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), reason, id)
	return err
}

// DeleteOld removes published messages older than the retention window.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := r.dbConn.ExecContext(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL AND published_at < ?
	`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		m                            Message
		eventIDStr, aggregateIDStr   string
		payload, metadata, createdAt string
		publishedAt, nextRetryAt     sql.NullString
		deadLetteredAt               sql.NullString
		lastError, deadLetterReason  sql.NullString
	)
	err := rows.Scan(
		&m.ID, &eventIDStr, &m.AggregateType, &aggregateIDStr, &m.RoutingKey,
		&payload, &metadata, &createdAt, &publishedAt, &nextRetryAt,
		&m.RetryCount, &lastError, &deadLetteredAt, &deadLetterReason,
	)
	if err != nil {
		return nil, err
	}
	m.EventID, _ = uuid.Parse(eventIDStr)
	m.AggregateID, _ = uuid.Parse(aggregateIDStr)
	m.Payload = []byte(payload)
	m.Metadata = []byte(metadata)
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.PublishedAt = parseNullTime(publishedAt)
	m.NextRetryAt = parseNullTime(nextRetryAt)
	m.DeadLetteredAt = parseNullTime(deadLetteredAt)
	if lastError.Valid {
		m.LastError = &lastError.String
	}
	if deadLetterReason.Valid {
		m.DeadLetterReason = &deadLetterReason.String
	}
	return &m, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

var _ Repository = (*SQLiteRepository)(nil)
