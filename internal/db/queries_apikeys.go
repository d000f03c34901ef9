package db

import (
	"database/sql"

	"github.com/YannKr/fingerprint/internal/model"
)

func CreateAPIKey(database *sql.DB, k *model.APIKey) error {
	_, err := database.Exec(
		`INSERT INTO api_keys (id, name, key_prefix, key_hash) VALUES (?, ?, ?, ?)`,
		k.ID, k.Name, k.KeyPrefix, k.KeyHash,
	)
	return err
}

func ListAPIKeys(database *sql.DB) ([]model.APIKey, error) {
	rows, err := database.Query(
		`SELECT id, name, key_prefix, created_at, last_used_at
		 FROM api_keys ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		var createdAt SQLiteTime
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyPrefix, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = createdAt.Time
		k.LastUsedAt = scanNullTime(lastUsed)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteAPIKey reports whether a key with the given id existed.
func DeleteAPIKey(database *sql.DB, id string) (bool, error) {
	res, err := database.Exec(`DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func GetAPIKeyByPrefix(database *sql.DB, prefix string) (*model.APIKey, error) {
	k := &model.APIKey{}
	var createdAt SQLiteTime
	err := database.QueryRow(
		`SELECT id, name, key_prefix, key_hash, created_at
		 FROM api_keys WHERE key_prefix = ?`, prefix,
	).Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.KeyHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	k.CreatedAt = createdAt.Time
	return k, nil
}

func TouchAPIKeyUsed(database *sql.DB, id string) error {
	_, err := database.Exec(
		`UPDATE api_keys SET last_used_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id,
	)
	return err
}
