package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang/glog"

	"beatmapCollab/backend/internal/beatmap"
	"beatmapCollab/backend/internal/collab"
)

type BeatmapHandler struct {
	svc collab.Service
	// 房间未加载时直接读存储，可以为 nil
	store collab.SnapshotStore
}

func NewBeatmapHandler(svc collab.Service, store collab.SnapshotStore) *BeatmapHandler {
	return &BeatmapHandler{svc: svc, store: store}
}

func (h *BeatmapHandler) Register(g *gin.RouterGroup) {
	g.GET("/beatmaps/:id/snapshot", h.GetSnapshot)
	g.GET("/beatmaps/:id/members", h.GetMembers)
	g.POST("/beatmaps/:id/save", h.Save)
}

// GetSnapshot 优先返回房间里的最新副本
func (h *BeatmapHandler) GetSnapshot(c *gin.Context) {
	id := c.Param("id")
	snap, err := h.svc.Snapshot(c.Request.Context(), id)
	if errors.Is(err, collab.ErrRoomNotFound) {
		snap, err = h.loadStored(c, id)
	}
	if err != nil {
		if errors.Is(err, collab.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "beatmap " + id + " not found"})
			return
		}
		glog.Errorf("[http] snapshot %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "load snapshot failed"})
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *BeatmapHandler) loadStored(c *gin.Context, id string) (beatmap.Snapshot, error) {
	if h.store == nil {
		return beatmap.Snapshot{}, collab.ErrRoomNotFound
	}
	snap, _, ok, err := h.store.LoadSnapshot(c.Request.Context(), id)
	if err != nil {
		return beatmap.Snapshot{}, err
	}
	if !ok {
		return beatmap.Snapshot{}, collab.ErrRoomNotFound
	}
	snap.ID = id
	return snap, nil
}

func (h *BeatmapHandler) GetMembers(c *gin.Context) {
	id := c.Param("id")
	members := h.svc.Members(id)
	if members == nil {
		members = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"beatmapId": id, "sessions": members})
}

func (h *BeatmapHandler) Save(c *gin.Context) {
	id := c.Param("id")
	err := h.svc.SaveSnapshot(c.Request.Context(), id)
	switch {
	case err == nil:
		glog.Infof("[http] beatmap %s saved by user %d", id, c.GetUint64("userId"))
		c.JSON(http.StatusOK, gin.H{"beatmapId": id, "saved": true})
	case errors.Is(err, collab.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "beatmap " + id + " is not open"})
	case errors.Is(err, collab.ErrStoreNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "UNAVAILABLE", "message": err.Error()})
	default:
		glog.Errorf("[http] save %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "save failed"})
	}
}
