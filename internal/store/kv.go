package store

import (
	"database/sql"
	"time"
)

// SetValue stores a JSON value under a namespaced key (upsert).
func (db *DB) SetValue(ns, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO kv (ns, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ns, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		ns, key, value, now)
	return err
}

// GetValue retrieves a value. A missing key returns ("", false, nil), not an
// error — absent state means empty state, never a failure.
func (db *DB) GetValue(ns, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE ns = ? AND key = ?`, ns, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// DeleteValue removes a key. Deleting an absent key is not an error.
func (db *DB) DeleteValue(ns, key string) error {
	_, err := db.Exec(`DELETE FROM kv WHERE ns = ? AND key = ?`, ns, key)
	return err
}
