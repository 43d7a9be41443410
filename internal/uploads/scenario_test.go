package uploads

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bitrel/media-api/internal/library"
	"bitrel/media-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Full pass of the pipeline against a real library: a 10 MB audio file
// moves through credential, transfer and confirmation, and the
// aggregate's derived fields move with it
func TestTenMegabyteAudioEndToEnd(t *testing.T) {
	const size = 10_000_000

	db, err := gorm.Open(sqlite.Open("file:scenario?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.Aggregate{}, model.Stats{}))

	agg := model.Aggregate{
		ID:        "alb-1",
		UserID:    "user-1",
		Kind:      model.AggAlbum,
		Title:     "Demos",
		Slug:      "demos",
		Items:     model.ItemList{},
		CreatedAt: time.Now().Unix(),
	}
	require.NoError(t, db.Create(&agg).Error)

	var receivedBytes int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		receivedBytes = n
	}))
	defer srv.Close()

	gw := &fakeGateway{uploadURL: srv.URL}
	lib := library.New(db, gw)
	coord := NewCoordinator(time.Hour)
	defer coord.Close()

	p := NewPipeline(gw, lib, coord, nil)

	id, err := coord.Add(TaskSpec{
		AggregateID: "alb-1",
		UserID:      "user-1",
		FileName:    "demo.mp3",
		Kind:        model.KindAudio,
		MimeType:    "audio/mpeg",
		Size:        size,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "demo.mp3")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xff}, size), 0o600))

	p.Start(context.Background(), id, path)

	v := waitTerminal(t, coord, id)
	require.Equal(t, StatusSuccess, v.Status)
	assert.Equal(t, 100.0, v.Progress)
	assert.Equal(t, int64(size), v.UploadedBytes)
	assert.Equal(t, int64(size), receivedBytes)

	var stored model.Aggregate
	require.NoError(t, db.Where("id = ?", "alb-1").First(&stored).Error)

	assert.Equal(t, 1, stored.ItemCount)
	assert.Equal(t, int64(size), stored.TotalSize)
	require.Len(t, stored.Items, 1)

	it := stored.Items[0]
	assert.Equal(t, "demo.mp3", it.Name)
	assert.Equal(t, model.KindAudio, it.Kind)
	assert.Equal(t, int64(size), it.Ref.Size)
	assert.Equal(t, v.StorageKey, it.Ref.Key)
	require.NotNil(t, it.Audio)
}
