package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fingerprint "github.com/YannKr/fingerprint"
	"github.com/YannKr/fingerprint/internal/db"
	"github.com/YannKr/fingerprint/internal/model"
)

func TestRunOnceRemovesExpiredJobs(t *testing.T) {
	dir := t.TempDir()
	database, err := db.Open(dir)
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.Migrate(database, fingerprint.MigrationFS))

	for _, id := range []string{"done", "pending"} {
		for _, sub := range []string{"inputs", "outputs"} {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, sub, id), 0755))
		}
		require.NoError(t, db.EnqueueJob(database, &model.Job{ID: id, JobType: model.JobTypeEmbed, InputPath: "x", Params: "{}"}))
	}
	j, err := db.ClaimNextJob(database)
	require.NoError(t, err)
	require.NoError(t, db.CompleteJob(database, j.ID, "", "{}"))
	require.NoError(t, db.InsertFingerprint(database, &model.Fingerprint{
		ID: "f", PayloadHex: "00", PayloadLength: 1, Encoding: "hex", Subband: "HL", JobID: j.ID,
	}))

	c := &Cleaner{DB: database, DataDir: dir, Retention: time.Hour}

	c.RunOnce(time.Now())
	got, err := db.GetJob(database, j.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "within retention")

	c.RunOnce(time.Now().Add(2 * time.Hour))
	got, err = db.GetJob(database, j.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoDirExists(t, filepath.Join(dir, "inputs", j.ID))
	assert.NoDirExists(t, filepath.Join(dir, "outputs", j.ID))

	other := "pending"
	if j.ID == other {
		other = "done"
	}
	assert.DirExists(t, filepath.Join(dir, "inputs", other), "unfinished jobs are kept")

	fp, err := db.LookupFingerprint(database, "00")
	require.NoError(t, err)
	assert.NotNil(t, fp, "registry survives cleanup")
}
