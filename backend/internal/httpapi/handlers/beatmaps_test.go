package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/collab"
	"beatmapCollab/backend/internal/command"
)

type memStore struct {
	mu    sync.Mutex
	snaps map[string]beatmap.Snapshot
}

func (m *memStore) LoadSnapshot(_ context.Context, id string) (beatmap.Snapshot, uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	return s, 1, ok, nil
}

func (m *memStore) SaveSnapshot(_ context.Context, id string, _ uint64, s beatmap.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[id] = s
	return nil
}

func setup(t *testing.T, store collab.SnapshotStore) (*gin.Engine, *collab.InMemoryService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opt := collab.ServiceOptions{}
	if store != nil {
		opt.Store = store
	}
	svc := collab.NewInMemoryService(opt)
	r := gin.New()
	NewBeatmapHandler(svc, store).Register(r.Group("/collab"))
	return r, svc
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestGetSnapshotFromOpenRoom(t *testing.T) {
	r, svc := setup(t, nil)
	ctx := context.Background()
	_, _, err := svc.Join(ctx, "m1", "s1")
	require.NoError(t, err)
	payload, err := command.EncodeBatch([]command.Versioned{{Command: command.CreateBookmark{Time: 42, Name: "drop"}, Version: 1}})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "m1", "s1", payload)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/collab/beatmaps/m1/snapshot")
	require.Equal(t, http.StatusOK, w.Code)
	b, err := beatmap.UnmarshalSnapshot(w.Body.Bytes())
	require.NoError(t, err)
	bm, ok := b.Bookmarks.Get(42)
	require.True(t, ok)
	assert.Equal(t, "drop", bm.Name)

	w = do(r, http.MethodGet, "/collab/beatmaps/m1/members")
	require.Equal(t, http.StatusOK, w.Code)
	var members struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	assert.Equal(t, []string{"s1"}, members.Sessions)
}

func TestGetSnapshotFallsBackToStore(t *testing.T) {
	store := &memStore{snaps: map[string]beatmap.Snapshot{"stored": beatmap.New("stored").Snapshot()}}
	r, _ := setup(t, store)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/collab/beatmaps/stored/snapshot").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/collab/beatmaps/missing/snapshot").Code)
}

func TestSave(t *testing.T) {
	store := &memStore{snaps: map[string]beatmap.Snapshot{}}
	r, svc := setup(t, store)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/collab/beatmaps/m1/save").Code)

	_, _, err := svc.Join(context.Background(), "m1", "s1")
	require.NoError(t, err)
	w := do(r, http.MethodPost, "/collab/beatmaps/m1/save")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"beatmapId":"m1","saved":true}`, w.Body.String())
	assert.Contains(t, store.snaps, "m1")
}

func TestSaveWithoutStore(t *testing.T) {
	r, svc := setup(t, nil)
	_, _, err := svc.Join(context.Background(), "m1", "s1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/collab/beatmaps/m1/save").Code)
}
