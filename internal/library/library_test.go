package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bitrel/media-api/internal/model"
	"bitrel/media-api/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingGateway struct {
	mu       sync.Mutex
	deleted  []string
	failKeys map[string]bool
}

func (g *recordingGateway) IssueUploadCredential(context.Context, string, model.MediaKind, string, string, int64) (*storage.UploadCredential, error) {
	return nil, errors.New("not implemented")
}

func (g *recordingGateway) IssueDownloadCredential(context.Context, string) (*storage.DownloadCredential, error) {
	return nil, errors.New("not implemented")
}

func (g *recordingGateway) Delete(_ context.Context, keys []string) (deleted, failed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, k := range keys {
		if g.failKeys[k] {
			failed = append(failed, k)
			continue
		}
		deleted = append(deleted, k)
		g.deleted = append(g.deleted, k)
	}

	return deleted, failed
}

func (g *recordingGateway) deletedKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.deleted...)
}

func newTestLibrary(t *testing.T) (*Library, *recordingGateway) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Shared in-memory databases collide across tests by name, keep
	// writes serialized instead
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.Aggregate{}, model.Stats{}))
	require.NoError(t, db.Exec("DELETE FROM aggregates").Error)
	require.NoError(t, db.Exec("DELETE FROM stats").Error)

	gw := &recordingGateway{}
	return New(db, gw), gw
}

func seedAggregate(t *testing.T, l *Library, id string, items ...model.Item) {
	t.Helper()

	agg := model.Aggregate{
		ID:        id,
		UserID:    "user-1",
		Kind:      model.AggGallery,
		Title:     "Holiday",
		Slug:      "holiday-" + id,
		Items:     items,
		CreatedAt: time.Now().Unix(),
	}
	agg.Recompute()

	require.NoError(t, l.DB.Create(&agg).Error)
	require.NoError(t, l.DB.Save(&model.Stats{
		UserID:        "user-1",
		MaxStorage:    1 << 30,
		UsedStorage:   agg.TotalSize,
		UploadedItems: agg.ItemCount,
	}).Error)
}

func imageItem(id string, size int64) model.Item {
	return model.Item{
		ID:   id,
		Name: id + ".png",
		Kind: model.KindImage,
		Ref: model.StorageRef{
			Key:      "agg/image/" + id + ".png",
			MimeType: "image/png",
			Size:     size,
		},
		ThumbKey:   "agg/image/thumb_" + id + ".png",
		UploadedAt: time.Now().Unix(),
	}
}

func codeItem(id, content string) model.Item {
	return model.Item{
		ID:   id,
		Name: id + ".go",
		Kind: model.KindCode,
		Code: &model.CodeMeta{
			Path:     "cmd/" + id + ".go",
			Language: "go",
			Content:  content,
		},
		UploadedAt: time.Now().Unix(),
	}
}

func fetchAggregate(t *testing.T, l *Library, id string) model.Aggregate {
	t.Helper()

	var agg model.Aggregate
	require.NoError(t, l.DB.Where("id = ?", id).First(&agg).Error)
	return agg
}

func TestAppendItemKeepsDerivedFieldsConsistent(t *testing.T) {
	l, _ := newTestLibrary(t)
	seedAggregate(t, l, "agg-1")

	agg, err := l.AppendItem(context.Background(), "agg-1", imageItem("i1", 1000))
	require.NoError(t, err)
	assert.Equal(t, 1, agg.ItemCount)
	assert.Equal(t, int64(1000), agg.TotalSize)

	agg, err = l.AppendItem(context.Background(), "agg-1", imageItem("i2", 500))
	require.NoError(t, err)
	assert.Equal(t, 2, agg.ItemCount)
	assert.Equal(t, int64(1500), agg.TotalSize)

	stored := fetchAggregate(t, l, "agg-1")
	assert.Equal(t, 2, stored.ItemCount)
	assert.Equal(t, int64(1500), stored.TotalSize)
	require.Len(t, stored.Items, 2)
}

func TestAppendCodeItemCountsEmbeddedContent(t *testing.T) {
	l, _ := newTestLibrary(t)
	seedAggregate(t, l, "agg-1")

	content := "package main\n\nfunc main() {}\n"
	agg, err := l.AppendItem(context.Background(), "agg-1", codeItem("c1", content))
	require.NoError(t, err)

	assert.Equal(t, 1, agg.ItemCount)
	assert.Equal(t, int64(len(content)), agg.TotalSize)
}

func TestAppendToMissingAggregate(t *testing.T) {
	l, _ := newTestLibrary(t)

	_, err := l.AppendItem(context.Background(), "nope", imageItem("i1", 10))
	require.ErrorIs(t, err, ErrAggregateNotFound)
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	l, _ := newTestLibrary(t)
	seedAggregate(t, l, "agg-1")

	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, err := l.AppendItem(context.Background(), "agg-1", imageItem(fmt.Sprintf("i%d", i), 100))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored := fetchAggregate(t, l, "agg-1")
	assert.Equal(t, n, stored.ItemCount)
	assert.Equal(t, int64(n*100), stored.TotalSize)
	assert.Len(t, stored.Items, n)
}

func TestRemoveItemRecomputesAndDeletesBlobs(t *testing.T) {
	l, gw := newTestLibrary(t)
	seedAggregate(t, l, "agg-1", imageItem("i1", 1000), imageItem("i2", 500))

	agg, err := l.RemoveItem(context.Background(), "agg-1", "i1")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.ItemCount)
	assert.Equal(t, int64(500), agg.TotalSize)

	// Primary and thumb keys both go
	assert.ElementsMatch(t, []string{"agg/image/i1.png", "agg/image/thumb_i1.png"}, gw.deletedKeys())
}

func TestRemoveLastItemZeroesDerivedFields(t *testing.T) {
	l, _ := newTestLibrary(t)
	seedAggregate(t, l, "agg-1", imageItem("i1", 1000))

	agg, err := l.RemoveItem(context.Background(), "agg-1", "i1")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.ItemCount)
	assert.Equal(t, int64(0), agg.TotalSize)

	stored := fetchAggregate(t, l, "agg-1")
	assert.Equal(t, 0, stored.ItemCount)
	assert.Equal(t, int64(0), stored.TotalSize)
	assert.Empty(t, stored.Items)
}

func TestRemoveItemSurvivesStorageFailure(t *testing.T) {
	l, gw := newTestLibrary(t)
	gw.failKeys = map[string]bool{"agg/image/i1.png": true}

	seedAggregate(t, l, "agg-1", imageItem("i1", 1000))

	_, err := l.RemoveItem(context.Background(), "agg-1", "i1")
	require.NoError(t, err)

	// The record is gone even though a blob survived
	stored := fetchAggregate(t, l, "agg-1")
	assert.Empty(t, stored.Items)
}

func TestRemoveMissingItem(t *testing.T) {
	l, _ := newTestLibrary(t)
	seedAggregate(t, l, "agg-1", imageItem("i1", 1000))

	_, err := l.RemoveItem(context.Background(), "agg-1", "ghost")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestDeleteAggregateCollectsEveryKeyOnce(t *testing.T) {
	l, gw := newTestLibrary(t)

	seedAggregate(t, l, "agg-1", imageItem("i1", 1000), imageItem("i2", 500), codeItem("c1", "x"))

	require.NoError(t, l.DB.Model(&model.Aggregate{}).
		Where("id = ?", "agg-1").
		Update("cover_key", "agg/image/i1.png"). // same blob doubles as cover
		Error)

	require.NoError(t, l.DeleteAggregate(context.Background(), "agg-1"))

	// Each key exactly once, the cover not repeated, no key for the
	// embedded code item
	assert.ElementsMatch(t, []string{
		"agg/image/i1.png",
		"agg/image/thumb_i1.png",
		"agg/image/i2.png",
		"agg/image/thumb_i2.png",
	}, gw.deletedKeys())

	err := l.DB.Where("id = ?", "agg-1").First(&model.Aggregate{}).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteAggregateSurvivesStorageFailure(t *testing.T) {
	l, gw := newTestLibrary(t)
	gw.failKeys = map[string]bool{"agg/image/i1.png": true}

	seedAggregate(t, l, "agg-1", imageItem("i1", 1000))

	require.NoError(t, l.DeleteAggregate(context.Background(), "agg-1"))

	err := l.DB.Where("id = ?", "agg-1").First(&model.Aggregate{}).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStatsFollowMutations(t *testing.T) {
	l, _ := newTestLibrary(t)
	seedAggregate(t, l, "agg-1")

	_, err := l.AppendItem(context.Background(), "agg-1", imageItem("i1", 1000))
	require.NoError(t, err)

	var stats model.Stats
	require.NoError(t, l.DB.Where("user_id = ?", "user-1").First(&stats).Error)
	assert.Equal(t, int64(1000), stats.UsedStorage)
	assert.Equal(t, 1, stats.UploadedItems)

	_, err = l.RemoveItem(context.Background(), "agg-1", "i1")
	require.NoError(t, err)

	require.NoError(t, l.DB.Where("user_id = ?", "user-1").First(&stats).Error)
	assert.Equal(t, int64(0), stats.UsedStorage)
	assert.Equal(t, 0, stats.UploadedItems)
}

func TestRenameItemLeavesStatsAlone(t *testing.T) {
	l, _ := newTestLibrary(t)
	seedAggregate(t, l, "agg-1", imageItem("i1", 1000))

	agg, err := l.RenameItem(context.Background(), "agg-1", "i1", "sunset.png")
	require.NoError(t, err)

	require.Len(t, agg.Items, 1)
	assert.Equal(t, "sunset.png", agg.Items[0].Name)
	assert.Equal(t, int64(1000), agg.TotalSize)
}
