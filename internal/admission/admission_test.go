package admission

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonzbd/internal/config"
	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/logger"
	"gonzbd/internal/persistence"
	"gonzbd/internal/queue"
)

const testNZB = `<?xml version="1.0"?>
<nzb>
  <head><meta type="name">Example.Release</meta></head>
  <file subject="[1/1] &quot;x.bin&quot;" poster="p">
    <groups><group>g</group></groups>
    <segments><segment number="1" bytes="100">a@b</segment></segments>
  </file>
</nzb>`

func newTestController(t *testing.T) (*Controller, *persistence.Store) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		DownloadDir:        "/downloads",
		DefaultPostProcess: "unpack_and_cleanup",
		Duplicate: config.DuplicateConfig{
			Methods: []string{"nzb_hash", "nzb_name"},
			Action:  "block",
		},
		DiskSpace: config.DiskSpaceConfig{Enabled: false},
	}

	log, err := logger.New(filepath.Join(t.TempDir(), "test.log"), logger.LevelDebug, false)
	require.NoError(t, err)

	c := New(cfg, store, events.NewBus(16), queue.New(), log)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c, store
}

func TestSubmitPersistsJobAndEnqueues(t *testing.T) {
	c, _ := newTestController(t)
	job, err := c.Submit(context.Background(), strings.NewReader(testNZB), Submission{Priority: domain.PriorityNormal})
	require.NoError(t, err)

	assert.NotZero(t, job.ID)
	assert.Equal(t, "Example.Release", job.Name)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, 1, c.q.Len())
}

func TestSubmitBlocksDuplicateByHash(t *testing.T) {
	c, _ := newTestController(t)
	_, err := c.Submit(context.Background(), strings.NewReader(testNZB), Submission{})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), strings.NewReader(testNZB), Submission{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateJob))
}

func TestSubmitWarnActionAllowsDuplicate(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.Duplicate.Action = "warn"

	_, err := c.Submit(context.Background(), strings.NewReader(testNZB), Submission{})
	require.NoError(t, err)

	job, err := c.Submit(context.Background(), strings.NewReader(testNZB), Submission{})
	require.NoError(t, err)
	assert.NotZero(t, job.ID)
}

func TestSubmitRejectsInsufficientDiskSpace(t *testing.T) {
	c, _ := newTestController(t)
	c.cfg.DiskSpace.Enabled = true
	c.cfg.DiskSpace.SizeMultiplier = 1.1
	c.cfg.DiskSpace.MinFreeSpace = 0
	c.freeBytes = func(path string) (uint64, error) { return 10, nil }

	_, err := c.Submit(context.Background(), strings.NewReader(testNZB), Submission{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientDiskSpace))
}

func TestSubmitAppliesCategoryOverrides(t *testing.T) {
	c, store := newTestController(t)
	require.NoError(t, store.SaveCategory(context.Background(), &persistence.Category{
		Name: "movies", Destination: "/downloads/movies", PostProcess: "verify",
	}))

	job, err := c.Submit(context.Background(), strings.NewReader(testNZB), Submission{Category: "movies"})
	require.NoError(t, err)
	assert.Equal(t, "/downloads/movies", job.DestDir)
	assert.Equal(t, domain.PostProcessMode("verify"), job.PostProcess)
}

func TestSubmitRejectsNZBWithoutName(t *testing.T) {
	c, _ := newTestController(t)
	const noName = `<?xml version="1.0"?><nzb><file subject="s" poster="p"><groups><group>g</group></groups><segments><segment number="1" bytes="1">a@b</segment></segments></file></nzb>`
	_, err := c.Submit(context.Background(), strings.NewReader(noName), Submission{})
	assert.Error(t, err)
}
