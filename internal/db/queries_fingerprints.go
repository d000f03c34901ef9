package db

import (
	"database/sql"

	"github.com/YannKr/fingerprint/internal/model"
)

const fingerprintColumns = `id, payload_hex, payload_length, encoding, subband, label, job_id, output_sha256, created_at`

func scanFingerprint(row rowScanner) (*model.Fingerprint, error) {
	f := &model.Fingerprint{}
	var createdAt SQLiteTime
	err := row.Scan(&f.ID, &f.PayloadHex, &f.PayloadLength, &f.Encoding, &f.Subband,
		&f.Label, &f.JobID, &f.OutputSHA256, &createdAt)
	if err != nil {
		return nil, err
	}
	f.CreatedAt = createdAt.Time
	return f, nil
}

func InsertFingerprint(database *sql.DB, f *model.Fingerprint) error {
	_, err := database.Exec(
		`INSERT INTO fingerprints (id, payload_hex, payload_length, encoding, subband, label, job_id, output_sha256)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.PayloadHex, f.PayloadLength, f.Encoding, f.Subband, f.Label, f.JobID, f.OutputSHA256,
	)
	return err
}

// LookupFingerprint returns the most recent registration of payloadHex, or
// nil when the payload was never issued.
func LookupFingerprint(database *sql.DB, payloadHex string) (*model.Fingerprint, error) {
	f, err := scanFingerprint(database.QueryRow(
		`SELECT `+fingerprintColumns+` FROM fingerprints WHERE payload_hex = ?
		 ORDER BY created_at DESC LIMIT 1`, payloadHex))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func ListFingerprints(database *sql.DB, limit, offset int) ([]model.Fingerprint, error) {
	rows, err := database.Query(
		`SELECT `+fingerprintColumns+` FROM fingerprints ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Fingerprint
	for rows.Next() {
		f, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}
