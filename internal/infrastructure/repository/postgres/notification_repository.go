package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListRecipients enumerates organization members joined with their
// notification preferences. Members without a preferences row come back
// with Preferences nil.
func (r *NotificationRepository) ListRecipients(ctx context.Context, organizationID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT m.user_id, m.email, p.document_processed
FROM organization_members m
LEFT JOIN notification_preferences p
	ON p.organization_id = m.organization_id AND p.user_id = m.user_id
WHERE m.organization_id = $1
ORDER BY m.user_id
`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var recipients []domain.Recipient
	for rows.Next() {
		var (
			rec          domain.Recipient
			docProcessed sql.NullBool
		)
		if err := rows.Scan(&rec.UserID, &rec.Email, &docProcessed); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if docProcessed.Valid {
			rec.Preferences = &domain.NotificationPreferences{DocumentProcessed: docProcessed.Bool}
		}
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return recipients, nil
}

func (r *NotificationRepository) InsertLog(ctx context.Context, logEntry domain.NotificationLog) error {
	id := logEntry.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := logEntry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	metadata := logEntry.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal notification metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO notification_logs (
	id, organization_id, user_id, type, subject, success, error_message, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		id, logEntry.OrganizationID, logEntry.UserID, logEntry.Type, logEntry.Subject,
		logEntry.Success, logEntry.Error, metaJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListLogs(ctx context.Context, organizationID string, limit int) ([]domain.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, organization_id, user_id, type, subject, success, error_message, metadata, created_at
FROM notification_logs
WHERE organization_id = $1
ORDER BY created_at DESC
LIMIT $2
`, organizationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notification logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.NotificationLog
	for rows.Next() {
		var (
			entry   domain.NotificationLog
			errMsg  sql.NullString
			metaRaw []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.OrganizationID, &entry.UserID, &entry.Type, &entry.Subject,
			&entry.Success, &errMsg, &metaRaw, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		entry.Error = errMsg.String
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal notification metadata: %w", err)
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification logs: %w", err)
	}
	return logs, nil
}
