package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ffsqueeze/config"
	"ffsqueeze/ffmpeg"
	"ffsqueeze/task"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sseHeartbeat = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

type Handler struct {
	taskManager *task.Manager
	cfg         *config.Config
	log         *logrus.Entry
	upgrader    websocket.Upgrader
}

func NewHandler(tm *task.Manager, cfg *config.Config, log *logrus.Entry) *Handler {
	return &Handler{
		taskManager: tm,
		cfg:         cfg,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// handleCreateBatch queues a new batch.
func (h *Handler) handleCreateBatch(c *gin.Context) {
	var req task.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outputDir, err := resolveOutputDir(h.cfg.OutputDir, req.OutputDir)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.OutputDir = outputDir

	b, err := h.taskManager.Submit(req)
	if errors.Is(err, task.ErrQueueFull) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create batch", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"batchId": b.ID})
}

// resolveOutputDir maps a client-chosen output folder into root. Relative
// paths are taken from root; anything that ends up outside root is refused.
func resolveOutputDir(root, requested string) (string, error) {
	if requested == "" {
		return "", nil
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	dir := requested
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(base, dir)
	}
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output folder %q must be inside %s", requested, base)
	}
	return dir, nil
}

// handleListBatches lists all known batches, oldest first.
func (h *Handler) handleListBatches(c *gin.Context) {
	batches := h.taskManager.List()
	infos := make([]task.BatchInfo, 0, len(batches))
	for _, b := range batches {
		info := b.Info()
		h.buildDownloadURL(c, &info)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	c.JSON(http.StatusOK, infos)
}

// buildDownloadURL sets the download link of a completed batch's output.
func (h *Handler) buildDownloadURL(c *gin.Context, info *task.BatchInfo) {
	if info.Status != task.StatusCompleted || info.LastOutput == "" {
		return
	}

	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	info.DownloadURL = fmt.Sprintf("%s/api/v1/batches/%s/output", baseURL, info.ID)
}

// handleGetBatch retrieves the state of a single batch.
func (h *Handler) handleGetBatch(c *gin.Context) {
	b, found := h.taskManager.Get(c.Param("batchId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	info := b.Info()
	h.buildDownloadURL(c, &info)
	c.JSON(http.StatusOK, info)
}

// handleCancelBatch requests cancellation of a batch.
func (h *Handler) handleCancelBatch(c *gin.Context) {
	err := h.taskManager.Cancel(c.Param("batchId"))
	if errors.Is(err, task.ErrBatchNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Batch cancellation requested"})
}

// handleBatchEvents replays a batch's events as server-sent events and then
// follows it until the finished event.
func (h *Handler) handleBatchEvents(c *gin.Context) {
	b, found := h.taskManager.Get(c.Param("batchId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	history, events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	for _, ev := range history {
		c.SSEvent(string(ev.Type), ev)
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-time.After(sseHeartbeat):
			c.SSEvent("heartbeat", gin.H{"time": time.Now()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// handleBatchWebSocket sends the same stream as handleBatchEvents as JSON
// text frames and closes the socket after the finished event.
func (h *Handler) handleBatchWebSocket(c *gin.Context) {
	b, found := h.taskManager.Get(c.Param("batchId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade failed for batch %s: %v", b.ID, err)
		return
	}
	defer conn.Close()

	history, events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// Reading is required for control frames; the client never sends data.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev task.Event) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(ev)
	}
	for _, ev := range history {
		if err := send(ev); err != nil {
			return
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished"))
				return
			}
			if err := send(ev); err != nil {
				h.log.Debugf("WebSocket client for batch %s went away: %v", b.ID, err)
				return
			}
		case <-gone:
			return
		}
	}
}

// handleGetOutput serves the last output file of a batch.
func (h *Handler) handleGetOutput(c *gin.Context) {
	filePath, err := h.taskManager.OutputFile(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(filePath, filepath.Base(filePath))
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"host":   ffmpeg.ReadHostStats(h.cfg.OutputDir),
	})
}
