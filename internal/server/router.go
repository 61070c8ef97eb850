package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	manuscript "github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/module"
	"github.com/emrgen/manuscript/internal/service"
	"github.com/emrgen/manuscript/internal/store"
	"github.com/emrgen/manuscript/internal/transport"
)

// maxStateSize bounds a pushed state log to 32 MiB.
const maxStateSize = 32 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// cross-origin editors are expected; auth happens per request
	CheckOrigin: func(r *http.Request) bool { return true },
}

type handler struct {
	documents *service.DocumentService
	snapshots *service.SnapshotService
	restore   *service.RestoreService
	hub       *transport.Hub
}

// NewRouter wires the REST and websocket routes. An empty token disables
// bearer token checks.
func NewRouter(
	documents *service.DocumentService,
	snapshots *service.SnapshotService,
	restore *service.RestoreService,
	hub *transport.Hub,
	token string,
) *gin.Engine {
	h := &handler{
		documents: documents,
		snapshots: snapshots,
		restore:   restore,
		hub:       hub,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestTime(), module.Auth(token))

	v1 := r.Group("/v1")
	{
		docs := v1.Group("/projects/:owner/:project/documents")
		docs.GET("", h.listDocuments)
		docs.GET("/:doc", h.getDocument)
		docs.DELETE("/:doc", h.deleteDocument)
		docs.PUT("/:doc/state", h.pushState)

		docs.POST("/:doc/snapshots", h.createSnapshot)
		docs.GET("/:doc/snapshots", h.listSnapshots)
		docs.GET("/:doc/snapshots/:id", h.getSnapshot)
		docs.DELETE("/:doc/snapshots/:id", h.deleteSnapshot)
		docs.POST("/:doc/snapshots/:id/restore", h.restoreSnapshot)

		world := v1.Group("/projects/:owner/:project/worldbuilding")
		world.GET("/:doc", h.getDocument)
		world.DELETE("/:doc", h.deleteDocument)
		world.PUT("/:doc/state", h.pushState)

		v1.GET("/sync/:owner/:project/:doc", h.sync)
	}

	return r
}

func (h *handler) docID(c *gin.Context) manuscript.DocID {
	return manuscript.DocID{
		Worldbuilding: isWorldbuilding(c),
		Owner:         c.Param("owner"),
		Project:       c.Param("project"),
		Doc:           c.Param("doc"),
	}
}

func isWorldbuilding(c *gin.Context) bool {
	return c.Query("worldbuilding") == "true" ||
		strings.Contains(c.FullPath(), "/worldbuilding/")
}

func userID(c *gin.Context) (string, error) {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		return "", service.Errorf(service.KindUnauthorized, "missing X-User-ID header")
	}
	return id, nil
}

func abortError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{
		"error": gin.H{
			"kind":    kind.String(),
			"message": err.Error(),
		},
	})
}

func (h *handler) listDocuments(c *gin.Context) {
	docs, total, err := h.documents.ListDocuments(c.Request.Context(), c.Param("owner"), c.Param("project"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": total})
}

func (h *handler) getDocument(c *gin.Context) {
	view, err := h.documents.GetDocument(c.Request.Context(), h.docID(c).String())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) deleteDocument(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		abortError(c, err)
		return
	}
	if err := h.documents.DeleteDocument(c.Request.Context(), h.docID(c), uid); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// pushState accepts a full binary state log and merges it into the
// document. Used by the headless sync path.
func (h *handler) pushState(c *gin.Context) {
	if _, err := userID(c); err != nil {
		abortError(c, err)
		return
	}

	state, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStateSize))
	if err != nil {
		abortError(c, service.Errorf(service.KindInvalidFormat, "failed to read state body: %v", err))
		return
	}
	if len(state) == 0 {
		abortError(c, service.Errorf(service.KindInvalidFormat, "empty state body"))
		return
	}

	if err := h.documents.MergeState(c.Request.Context(), h.docID(c), state); err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"merged": true})
}

type createSnapshotBody struct {
	Name        string            `json:"name" binding:"required"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

func (h *handler) createSnapshot(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		abortError(c, err)
		return
	}

	var body createSnapshotBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, service.Errorf(service.KindInvalidFormat, "invalid snapshot payload: %v", err))
		return
	}

	view, err := h.snapshots.Create(c.Request.Context(), service.CreateSnapshotRequest{
		DocID:       h.docID(c),
		UserID:      uid,
		Name:        body.Name,
		Description: body.Description,
		Metadata:    body.Metadata,
	})
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *handler) listSnapshots(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		abortError(c, err)
		return
	}

	var p store.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		abortError(c, service.Errorf(service.KindInvalidFormat, "invalid pagination: %v", err))
		return
	}

	views, total, err := h.snapshots.List(c.Request.Context(), h.docID(c), uid, p)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": views, "total": total})
}

func (h *handler) getSnapshot(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		abortError(c, err)
		return
	}
	view, err := h.snapshots.Get(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) deleteSnapshot(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		abortError(c, err)
		return
	}
	if err := h.snapshots.Delete(c.Request.Context(), c.Param("id"), uid); err != nil {
		abortError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) restoreSnapshot(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		abortError(c, err)
		return
	}
	result, err := h.restore.RestoreSnapshot(c.Request.Context(), h.docID(c), c.Param("id"), uid)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) sync(c *gin.Context) {
	id := h.docID(c)
	if !id.Valid() {
		abortError(c, service.Errorf(service.KindInvalidFormat, "invalid document id"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response
		return
	}

	if err := h.hub.Serve(c.Request.Context(), id, conn); err != nil {
		logrus.Errorf("sync session for %s ended: %v", id, err)
	}
}
