package db

import (
	"database/sql"
	"time"

	"github.com/YannKr/fingerprint/internal/model"
)

const jobColumns = `id, job_type, api_key_id, state, progress,
	input_path, COALESCE(output_path, ''), params,
	COALESCE(result_data, ''), COALESCE(error_message, ''),
	created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var createdAt SQLiteTime
	var startedAt, completedAt sql.NullString
	err := row.Scan(
		&j.ID, &j.JobType, &j.APIKeyID, &j.State, &j.Progress,
		&j.InputPath, &j.OutputPath, &j.Params,
		&j.ResultData, &j.ErrorMessage,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	j.CreatedAt = createdAt.Time
	j.StartedAt = scanNullTime(startedAt)
	j.CompletedAt = scanNullTime(completedAt)
	return j, nil
}

func EnqueueJob(database *sql.DB, j *model.Job) error {
	_, err := database.Exec(
		`INSERT INTO jobs (id, job_type, api_key_id, state, input_path, params)
		 VALUES (?, ?, ?, 'PENDING', ?, ?)`,
		j.ID, j.JobType, j.APIKeyID, j.InputPath, j.Params,
	)
	return err
}

// ClaimNextJob moves the oldest pending job to RUNNING and returns it, or
// nil when the queue is empty.
func ClaimNextJob(database *sql.DB) (*model.Job, error) {
	j, err := scanJob(database.QueryRow(`
		UPDATE jobs
		SET state = 'RUNNING', started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = (
			SELECT id FROM jobs WHERE state = 'PENDING'
			ORDER BY created_at ASC LIMIT 1
		)
		RETURNING ` + jobColumns))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// RequeueRunningJobs returns jobs interrupted by a shutdown to the queue.
func RequeueRunningJobs(database *sql.DB) (int64, error) {
	res, err := database.Exec(
		`UPDATE jobs SET state = 'PENDING', progress = 0, started_at = NULL WHERE state = 'RUNNING'`,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func CompleteJob(database *sql.DB, id, outputPath, resultJSON string) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = 'COMPLETED', progress = 100, output_path = NULLIF(?, ''), result_data = ?,
		        completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, outputPath, resultJSON, id,
	)
	return err
}

func FailJob(database *sql.DB, id, errorMsg string) error {
	_, err := database.Exec(
		`UPDATE jobs SET state = 'FAILED', error_message = ?, completed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, errorMsg, id,
	)
	return err
}

func UpdateJobProgress(database *sql.DB, id string, progress int) error {
	_, err := database.Exec(`UPDATE jobs SET progress = ? WHERE id = ?`, progress, id)
	return err
}

func GetJob(database *sql.DB, id string) (*model.Job, error) {
	j, err := scanJob(database.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func ListJobs(database *sql.DB, limit int) ([]model.Job, error) {
	rows, err := database.Query(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ListExpiredJobs returns finished jobs that completed before cutoff.
func ListExpiredJobs(database *sql.DB, cutoff time.Time) ([]model.Job, error) {
	rows, err := database.Query(`SELECT `+jobColumns+` FROM jobs
		WHERE state IN ('COMPLETED', 'FAILED') AND completed_at < ?
		ORDER BY completed_at ASC`, formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func DeleteJob(database *sql.DB, id string) error {
	_, err := database.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func CountJobsByState(database *sql.DB) (map[string]int, error) {
	rows, err := database.Query(`SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
