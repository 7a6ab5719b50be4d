package ingest

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubesync/cube-server/internal/metrics"
	"github.com/cubesync/cube-server/internal/storage"
	"github.com/cubesync/cube-server/internal/store"
)

func TestMain(m *testing.M) {
	metrics.InitMetrics()
	os.Exit(m.Run())
}

// recordingHub captures broadcast events instead of fanning them out.
type recordingHub struct {
	mu     sync.Mutex
	events []any
}

func (h *recordingHub) Broadcast(event any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func newTestService(t *testing.T) (*Service, *recordingHub, string, string) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	uploadBase := t.TempDir()
	uploadDir, err := storage.NewUploadDir(uploadBase)
	require.NoError(t, err)

	thumbDir := t.TempDir()
	h := &recordingHub{}
	svc := NewService(st, h, uploadDir, thumbDir, nil, nil, 0)
	return svc, h, uploadBase, thumbDir
}

func TestUploadRawStoresOnce(t *testing.T) {
	svc, h, base, _ := newTestService(t)
	ctx := context.Background()
	payload := []byte("raw image bytes")

	first, err := svc.UploadRaw(ctx, payload, "alice", "img.raw", nil)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, filepath.Join(base, "alice", "img.raw"), first.Path)
	assert.FileExists(t, first.Path)
	assert.Equal(t, 1, h.count())

	// Identical bytes again: no write, no record, no broadcast.
	second, err := svc.UploadRaw(ctx, payload, "alice", "img.raw", nil)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, 1, h.count())
}

func TestUploadRawDatePath(t *testing.T) {
	svc, _, base, _ := newTestService(t)
	modified := time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC)

	result, err := svc.UploadRaw(context.Background(), []byte("dated"), "alice", "img.jpg", &modified)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "alice", "2024", "03", "img.jpg"), result.Path)
	assert.FileExists(t, result.Path)
}

func TestUploadRawBroadcastShape(t *testing.T) {
	svc, h, _, _ := newTestService(t)

	result, err := svc.UploadRaw(context.Background(), []byte("payload"), "alice", "a.jpg", nil)
	require.NoError(t, err)

	require.Equal(t, 1, h.count())
	event, ok := h.events[0].(copiedEvent)
	require.True(t, ok)
	assert.Equal(t, "copied", event.Event)
	assert.Equal(t, result.Hash, event.Hash)
	assert.Equal(t, "success", event.Status)
	assert.Equal(t, result.Path, event.Path)
}

func TestIngestThumbsUpsert(t *testing.T) {
	svc, _, _, thumbDir := newTestService(t)
	ctx := context.Background()
	jpeg := base64.StdEncoding.EncodeToString([]byte("fake jpeg bytes"))

	require.NoError(t, svc.IngestThumbs(ctx, []ThumbItem{
		{ID: "1", Name: "a.jpg", Size: "100", Hash: "h1", Status: "done", ThumbBase64: jpeg},
	}))
	require.NoError(t, svc.IngestThumbs(ctx, []ThumbItem{
		{ID: "1", Name: "b.jpg", Size: "150", Hash: "h1", Status: "done", ThumbBase64: jpeg},
	}))

	assert.FileExists(t, filepath.Join(thumbDir, "h1.jpg"))

	photos, err := svc.ListThumbs(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "h1", photos[0].ID)
	assert.Equal(t, "b.jpg", photos[0].Name)
	assert.Equal(t, "150", photos[0].Size)
	assert.Equal(t, "/thumbs/h1.jpg", photos[0].URL)
}

func TestIngestThumbsSkipsBadItems(t *testing.T) {
	svc, _, _, thumbDir := newTestService(t)
	ctx := context.Background()
	good := base64.StdEncoding.EncodeToString([]byte("jpeg"))

	err := svc.IngestThumbs(ctx, []ThumbItem{
		{ID: "1", Name: "bad.jpg", Size: "1", Hash: "bad", ThumbBase64: "%%% not base64 %%%"},
		{ID: "2", Name: "good.jpg", Size: "2", Hash: "good", ThumbBase64: good},
	})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(thumbDir, "bad.jpg"))
	assert.FileExists(t, filepath.Join(thumbDir, "good.jpg"))

	photos, err := svc.ListThumbs(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "good", photos[0].ID)
}

func TestListThumbsReconciliation(t *testing.T) {
	svc, _, _, thumbDir := newTestService(t)
	ctx := context.Background()
	jpeg := base64.StdEncoding.EncodeToString([]byte("jpeg"))

	require.NoError(t, svc.IngestThumbs(ctx, []ThumbItem{
		{ID: "1", Name: "kept.jpg", Size: "1", Hash: "kept", ThumbBase64: jpeg},
	}))

	// A record whose thumbnail never made it to disk is excluded.
	require.NoError(t, svc.store.UpsertThumbs(ctx, []store.ThumbRecord{
		{Hash: "ghost", Name: "ghost.jpg", Size: "9"},
	}))

	photos, err := svc.ListThumbs(ctx)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "kept", photos[0].ID)
	assert.FileExists(t, filepath.Join(thumbDir, "kept.jpg"))
}

func TestUploadRawAfterDirReconfigure(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	newBase := t.TempDir()
	require.NoError(t, svc.uploadDir.Set(newBase))

	result, err := svc.UploadRaw(context.Background(), []byte("moved"), "bob", "b.raw", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(newBase, "bob", "b.raw"), result.Path)
}
