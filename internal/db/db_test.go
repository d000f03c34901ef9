package db_test

import (
	"database/sql"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fingerprint "github.com/YannKr/fingerprint"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, fingerprint.MigrationFS))
	return database
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, db.Migrate(database, fingerprint.MigrationFS))

	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM _migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrateAppliesOnlyPendingSQL(t *testing.T) {
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	migrations := fstest.MapFS{
		"migrations/001_a.sql":   {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"migrations/README.md":   {Data: []byte(`not sql`)},
		"migrations/002_bad.sql": {Data: []byte(`CREATE TABLE b (id INTEGER); SELEC nonsense;`)},
	}
	require.Error(t, db.Migrate(database, migrations))

	applied, err := db.AppliedMigrations(database)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql"}, applied)
	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'b'`).Scan(&n))
	assert.Zero(t, n, "failed migration rolled back")

	migrations["migrations/002_bad.sql"] = &fstest.MapFile{Data: []byte(`CREATE TABLE b (id INTEGER);`)}
	require.NoError(t, db.Migrate(database, migrations))
	applied, err = db.AppliedMigrations(database)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_bad.sql"}, applied)
}

func TestJobLifecycle(t *testing.T) {
	database := openTestDB(t)

	for _, id := range []string{"first", "second"} {
		require.NoError(t, db.EnqueueJob(database, &model.Job{
			ID: id, JobType: model.JobTypeEmbed, InputPath: "/in/" + id, Params: `{"payload":"x"}`,
		}))
		time.Sleep(2 * time.Millisecond)
	}

	j, err := db.ClaimNextJob(database)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, "first", j.ID)
	assert.Equal(t, model.JobRunning, j.State)
	assert.NotNil(t, j.StartedAt)
	assert.Equal(t, `{"payload":"x"}`, j.Params)

	require.NoError(t, db.UpdateJobProgress(database, j.ID, 40))
	require.NoError(t, db.CompleteJob(database, j.ID, "/out/first.png", `{"ok":true}`))

	got, err := db.GetJob(database, "first")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.State)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/out/first.png", got.OutputPath)
	assert.Equal(t, `{"ok":true}`, got.ResultData)
	assert.NotNil(t, got.CompletedAt)
	assert.True(t, got.Finished())

	j, err = db.ClaimNextJob(database)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.NoError(t, db.FailJob(database, j.ID, "boom"))

	j, err = db.ClaimNextJob(database)
	require.NoError(t, err)
	assert.Nil(t, j, "queue drained")

	missing, err := db.GetJob(database, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	counts, err := db.CountJobsByState(database)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{model.JobCompleted: 1, model.JobFailed: 1}, counts)
}

func TestRequeueAndExpire(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, db.EnqueueJob(database, &model.Job{ID: "a", JobType: model.JobTypeDetect, InputPath: "/a", Params: "{}"}))
	require.NoError(t, db.EnqueueJob(database, &model.Job{ID: "b", JobType: model.JobTypeDetect, InputPath: "/b", Params: "{}"}))
	_, err := db.ClaimNextJob(database)
	require.NoError(t, err)

	n, err := db.RequeueRunningJobs(database)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	j, err := db.ClaimNextJob(database)
	require.NoError(t, err)
	require.NoError(t, db.CompleteJob(database, j.ID, "", "{}"))

	expired, err := db.ListExpiredJobs(database, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = db.ListExpiredJobs(database, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, j.ID, expired[0].ID)
	assert.Empty(t, expired[0].OutputPath)

	require.NoError(t, db.DeleteJob(database, j.ID))
	jobs, err := db.ListJobs(database, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestFingerprintRegistry(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, db.InsertFingerprint(database, &model.Fingerprint{
		ID: "f1", PayloadHex: "c1e1", PayloadLength: 2, Encoding: "7bit", Subband: "HL", Label: "alice", JobID: "j1",
	}))

	f, err := db.LookupFingerprint(database, "c1e1")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "alice", f.Label)
	assert.Equal(t, 2, f.PayloadLength)
	assert.False(t, f.CreatedAt.IsZero())

	f, err = db.LookupFingerprint(database, "ffff")
	require.NoError(t, err)
	assert.Nil(t, f)

	list, err := db.ListFingerprints(database, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = db.ListFingerprints(database, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAPIKeys(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, db.CreateAPIKey(database, &model.APIKey{ID: "k1", Name: "ci", KeyPrefix: "abcd1234", KeyHash: "h"}))
	assert.Error(t, db.CreateAPIKey(database, &model.APIKey{ID: "k2", Name: "dup", KeyPrefix: "abcd1234", KeyHash: "h"}),
		"prefixes are unique")

	k, err := db.GetAPIKeyByPrefix(database, "abcd1234")
	require.NoError(t, err)
	require.NotNil(t, k)
	assert.Equal(t, "h", k.KeyHash)

	require.NoError(t, db.TouchAPIKeyUsed(database, "k1"))
	keys, err := db.ListAPIKeys(database)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	ok, err := db.DeleteAPIKey(database, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.DeleteAPIKey(database, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWebhookDeliveries(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, db.CreateWebhook(database, &model.Webhook{
		ID: "w1", URL: "http://x", Secret: "s", Events: "job_completed, job_failed", Enabled: true,
	}))
	hooks, err := db.ListEnabledWebhooks(database, "job_failed")
	require.NoError(t, err)
	assert.Len(t, hooks, 1)
	hooks, err = db.ListEnabledWebhooks(database, "other")
	require.NoError(t, err)
	assert.Empty(t, hooks)

	retry := time.Now().Add(-time.Second)
	d := &model.WebhookDelivery{
		ID: "d1", WebhookID: "w1", EventType: "job_failed", EventID: "e1",
		PayloadJSON: "{}", AttemptNumber: 1, State: "pending",
	}
	require.NoError(t, db.CreateWebhookDelivery(database, d))

	status := 500
	d.State = "failed"
	d.ResponseStatus = &status
	d.NextRetryAt = &retry
	require.NoError(t, db.UpdateWebhookDelivery(database, d))

	due, err := db.ListDueWebhookDeliveries(database, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NotNil(t, due[0].ResponseStatus)
	assert.Equal(t, 500, *due[0].ResponseStatus)

	d.State = "delivered"
	d.NextRetryAt = nil
	require.NoError(t, db.UpdateWebhookDelivery(database, d))
	due, err = db.ListDueWebhookDeliveries(database, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	n, err := db.PruneOldWebhookDeliveries(database, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
