package cf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventiq/recoengine/internal/errs"
	"github.com/eventiq/recoengine/internal/models"
)

func trainedRecommender(t *testing.T) *Recommender {
	t.Helper()
	now := time.Now()
	interactions := []models.Interaction{
		{UserID: "u1", EventID: "e1", Type: models.InteractionLike, Timestamp: now},
		{UserID: "u1", EventID: "e2", Type: models.InteractionView, Timestamp: now},
		{UserID: "u2", EventID: "e1", Type: models.InteractionRegister, Timestamp: now},
		{UserID: "u2", EventID: "e3", Type: models.InteractionClick, Timestamp: now},
		{UserID: "u3", EventID: "e2", Type: models.InteractionShare, Timestamp: now},
		{UserID: "u3", EventID: "e3", Type: models.InteractionLike, Timestamp: now},
	}
	rec := New(Config{MinInteractions: 5, Factors: 2, Epochs: 20}, testLogger())
	require.NoError(t, rec.Train(interactions, "v-test"))
	require.True(t, rec.IsTrained())
	return rec
}

func TestSnapshot_RoundTripServesIdentically(t *testing.T) {
	rec := trainedRecommender(t)
	path := filepath.Join(t.TempDir(), "cf_model.json")
	require.NoError(t, rec.SaveSnapshot(path))

	loaded := New(Config{MinInteractions: 5, Factors: 2, Epochs: 20}, testLogger())
	require.NoError(t, loaded.LoadSnapshot(path))
	require.True(t, loaded.IsTrained())

	want, err := rec.Recommend("u1", 3, nil)
	require.NoError(t, err)
	got, err := loaded.Recommend("u1", 3, nil)
	require.NoError(t, err)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].EventID, got[i].EventID)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-12)
	}
}

func TestSnapshot_SaveLeavesNoTempFiles(t *testing.T) {
	rec := trainedRecommender(t)
	dir := t.TempDir()
	require.NoError(t, rec.SaveSnapshot(filepath.Join(dir, "cf_model.json")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cf_model.json", entries[0].Name())
}

func TestSnapshot_RejectsWrongSchemaVersion(t *testing.T) {
	rec := trainedRecommender(t)
	path := filepath.Join(t.TempDir(), "cf_model.json")
	require.NoError(t, rec.SaveSnapshot(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var p map[string]any
	require.NoError(t, json.Unmarshal(raw, &p))
	p["schema_version"] = snapshotSchemaVersion + 1
	tampered, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	loaded := trainedRecommender(t)
	before, err := loaded.Recommend("u1", 3, nil)
	require.NoError(t, err)

	err = loaded.LoadSnapshot(path)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Fatal))

	// The previously published model keeps serving, untouched.
	after, err := loaded.Recommend("u1", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSnapshot_RejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cf_model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":1,"user_ind`), 0o644))

	loaded := New(DefaultConfig(), testLogger())
	err := loaded.LoadSnapshot(path)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Fatal))
	assert.False(t, loaded.IsTrained())
}

func TestSnapshot_SaveWithoutModelFails(t *testing.T) {
	rec := New(DefaultConfig(), testLogger())
	err := rec.SaveSnapshot(filepath.Join(t.TempDir(), "cf_model.json"))
	require.Error(t, err)
}
