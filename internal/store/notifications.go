package store

import "time"

// NotificationRecord is a durable copy of a pushed notification entry. The
// in-memory inbox is capped; this table is the uncapped audit trail behind
// `konsulctl notifications --all`.
type NotificationRecord struct {
	ID        string
	ChatID    string
	ChatName  string
	Summary   string
	Kind      string
	CreatedAt int64
}

// AppendNotification records a pushed entry (idempotent on id).
func (db *DB) AppendNotification(r *NotificationRecord) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO notification_history (id, chat_id, chat_name, summary, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		r.ID, r.ChatID, r.ChatName, r.Summary, r.Kind, r.CreatedAt)
	return err
}

// ListNotifications returns history newest-first.
func (db *DB) ListNotifications(limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, chat_id, chat_name, summary, kind, created_at
		FROM notification_history
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []NotificationRecord
	for rows.Next() {
		var r NotificationRecord
		if err := rows.Scan(&r.ID, &r.ChatID, &r.ChatName, &r.Summary, &r.Kind, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
