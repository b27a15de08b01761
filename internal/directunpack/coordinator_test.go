package directunpack

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonzbd/internal/config"
	"gonzbd/internal/domain"
	"gonzbd/internal/events"
	"gonzbd/internal/extraction"
	"gonzbd/internal/logger"
	"gonzbd/internal/persistence"
)

func testCoordinator(t *testing.T, cfg *config.Config) (*Coordinator, *persistence.Store, *events.Bus) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	l, err := logger.New(filepath.Join(t.TempDir(), "test.log"), logger.LevelDebug, false)
	require.NoError(t, err)

	bus := events.NewBus(0)
	return New(cfg, store, bus, l, extraction.NewManager(cfg)), store, bus
}

func TestEligibleRequiresEnabledAndUnpackMode(t *testing.T) {
	cfg := &config.Config{DirectUnpack: config.DirectUnpackConfig{Enabled: true}}
	c, _, _ := testCoordinator(t, cfg)

	assert.True(t, c.Eligible(&domain.Job{PostProcess: domain.PostProcessUnpack}))
	assert.True(t, c.Eligible(&domain.Job{PostProcess: domain.PostProcessUnpackAndCleanup}))
	assert.False(t, c.Eligible(&domain.Job{PostProcess: domain.PostProcessVerify}))

	cfg.DirectUnpack.Enabled = false
	assert.False(t, c.Eligible(&domain.Job{PostProcess: domain.PostProcessUnpack}))
}

func TestTryRenameMatchesMD5_16kAndPersists(t *testing.T) {
	cfg := &config.Config{TempDir: t.TempDir(), DirectUnpack: config.DirectUnpackConfig{Enabled: true, DirectRename: true}}
	c, store, _ := testCoordinator(t, cfg)

	job := &domain.Job{Name: "job", CreatedAt: time.Now()}
	id, err := store.EnqueueJob(context.Background(), job)
	require.NoError(t, err)
	job.ID = id

	content := []byte("the real video bytes, short enough to hash whole")
	partPath := filepath.Join(t.TempDir(), "8f3ac91b2d47e609.part")
	require.NoError(t, os.WriteFile(partPath, content, 0o644))

	obfuscated := &domain.File{JobID: id, Name: "8f3ac91b2d47e609", PartPath: partPath}
	job.Files = []*domain.File{obfuscated}
	require.NoError(t, store.UpsertFile(context.Background(), obfuscated))

	tr := newTracker(c, job)
	hash, err := Hash16k(partPath)
	require.NoError(t, err)
	tr.byMD5_16k[hash] = "Movie.Title.2024.mkv"
	tr.parDescsLoaded = true

	tr.tryRename(context.Background(), obfuscated)

	assert.Equal(t, "Movie.Title.2024.mkv", obfuscated.Name)
	assert.Equal(t, "8f3ac91b2d47e609", obfuscated.OriginalName)
	assert.FileExists(t, filepath.Join(filepath.Dir(partPath), "Movie.Title.2024.mkv.part"))

	files, err := store.ListFiles(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Movie.Title.2024.mkv", files[0].Name)
}

func TestTryRenameSkipsParFiles(t *testing.T) {
	cfg := &config.Config{DirectUnpack: config.DirectUnpackConfig{Enabled: true, DirectRename: true}}
	c, _, _ := testCoordinator(t, cfg)
	job := &domain.Job{Files: []*domain.File{}}
	tr := newTracker(c, job)

	parFile := &domain.File{Name: "set.par2", IsParFile: true, PartPath: "/tmp/nonexistent"}
	tr.tryRename(context.Background(), parFile) // must not panic or touch byMD5_16k lookups

	assert.Empty(t, tr.byMD5_16k)
}

func TestMaybeExtractSetWaitsForAllVolumes(t *testing.T) {
	cfg := &config.Config{TempDir: t.TempDir(), DirectUnpack: config.DirectUnpackConfig{Enabled: true}}
	c, _, _ := testCoordinator(t, cfg)

	a := &domain.File{Name: "Release.rar", Completed: true, PartPath: "/tmp/a"}
	b := &domain.File{Name: "Release.r00", Completed: false, PartPath: "/tmp/b"}
	job := &domain.Job{Files: []*domain.File{a, b}}
	tr := newTracker(c, job)

	s := tr.rarSets["Release"]
	require.NotNil(t, s)
	tr.maybeExtractSet(context.Background(), s)

	assert.False(t, s.extracted)
	assert.Equal(t, 0, job.DirectUnpackExtracted)
}

func TestFinalizeOnlySucceedsWithExtractionsAndNoFailures(t *testing.T) {
	cfg := &config.Config{DirectUnpack: config.DirectUnpackConfig{Enabled: true}}
	c, _, _ := testCoordinator(t, cfg)

	job := &domain.Job{}
	tr := newTracker(c, job)
	tr.finalize()
	assert.NotEqual(t, domain.DirectUnpackSucceeded, job.DirectUnpackState)

	job.DirectUnpackExtracted = 1
	tr2 := newTracker(c, job)
	tr2.finalize()
	assert.Equal(t, domain.DirectUnpackSucceeded, job.DirectUnpackState)
}

func TestFinalizeSkipsWhenCancelled(t *testing.T) {
	cfg := &config.Config{DirectUnpack: config.DirectUnpackConfig{Enabled: true}}
	c, _, _ := testCoordinator(t, cfg)

	job := &domain.Job{DirectUnpackExtracted: 1}
	tr := newTracker(c, job)
	tr.cancelled = true
	tr.finalize()

	assert.NotEqual(t, domain.DirectUnpackSucceeded, job.DirectUnpackState)
}

func TestRunCancelsOnFirstArticleFailure(t *testing.T) {
	cfg := &config.Config{TempDir: t.TempDir(), DirectUnpack: config.DirectUnpackConfig{Enabled: true, PollIntervalMs: 10}}
	c, store, bus := testCoordinator(t, cfg)

	job := &domain.Job{Name: "job", PostProcess: domain.PostProcessUnpack, CreatedAt: time.Now()}
	id, err := store.EnqueueJob(context.Background(), job)
	require.NoError(t, err)
	job.ID = id

	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go c.Run(ctx, job, &wg)

	job.ArticlesFailed.Store(1)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			if ev.Kind == events.DirectUnpackCancelled {
				got, err := store.GetJob(context.Background(), job.ID)
				require.NoError(t, err)
				assert.Equal(t, domain.DirectUnpackCancelled, got.DirectUnpackState)
				cancel()
				wg.Wait()
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for direct_unpack_cancelled event")
		}
	}
}
