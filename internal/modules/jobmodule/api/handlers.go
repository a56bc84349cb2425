// Package api provides the HTTP status and control surface of the job
// module: lane snapshots, global pause, job removal, priority, tool versions,
// finished-job history and the event stream.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/events"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/history"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/manager"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
)

// APIHandler handles HTTP requests for the job module.
type APIHandler struct {
	service    JobService
	logger     hclog.Logger
	wsUpgrader websocket.Upgrader
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(service JobService, logger hclog.Logger) *APIHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &APIHandler{
		service: service,
		logger:  logger.Named("api"),
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ListJobs handles GET /api/v1/jobs
func (h *APIHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"paused": h.service.Paused(),
		"lanes":  h.service.Jobs(),
	})
}

// PauseJobs handles POST /api/v1/jobs/pause
func (h *APIHandler) PauseJobs(c *gin.Context) {
	h.service.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// ResumeJobs handles POST /api/v1/jobs/resume
func (h *APIHandler) ResumeJobs(c *gin.Context) {
	h.service.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// RemoveJob handles DELETE /api/v1/jobs/:id
// A pending job is removed; a running job is asked to abort.
func (h *APIHandler) RemoveJob(c *gin.Context) {
	id := c.Param("id")
	err := h.service.RemoveFromQueueAndAbort(id)
	switch {
	case errors.Is(err, manager.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case err != nil:
		h.logger.Error("failed to remove job", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"message": "job removed", "id": id})
	}
}

// ListHistory handles GET /api/v1/jobs/history?limit=N
func (h *APIHandler) ListHistory(c *gin.Context) {
	store := h.service.History()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job history is not enabled"})
		return
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, err := store.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list job history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records, "count": len(records)})
}

// GetHistoryRecord handles GET /api/v1/jobs/history/:id
func (h *APIHandler) GetHistoryRecord(c *gin.Context) {
	store := h.service.History()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job history is not enabled"})
		return
	}
	rec, err := store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetPriority handles GET /api/v1/priority
func (h *APIHandler) GetPriority(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"priority": h.service.Priority().String()})
}

type priorityRequest struct {
	Priority string `json:"priority" binding:"required"`
}

// SetPriority handles PUT /api/v1/priority
//
// Request body:
//
//	{"priority": "low|below_normal|normal|above_normal|high"}
func (h *APIHandler) SetPriority(c *gin.Context) {
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	p, err := process.ParsePriority(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.SetPriority(p); err != nil {
		h.logger.Error("failed to store priority", "priority", req.Priority, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"priority": p.String()})
}

// GetVersions handles GET /api/v1/tools/versions
func (h *APIHandler) GetVersions(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Versions(c.Request.Context()))
}

// ListEvents handles GET /api/v1/events?since=N&job_id=ID&type=T1,T2
func (h *APIHandler) ListEvents(c *gin.Context) {
	since, err := intQuery(c, "since", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bus := h.service.Events()
	evts := bus.Since(int64(since), eventFilter(c))
	c.JSON(http.StatusOK, gin.H{
		"events":   evts,
		"last_seq": bus.Stats().LastSeq,
	})
}

// GetEventStats handles GET /api/v1/events/stats
func (h *APIHandler) GetEventStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Events().Stats())
}

func eventFilter(c *gin.Context) events.EventFilter {
	filter := events.EventFilter{JobID: c.Query("job_id")}
	if raw := c.Query("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, events.EventType(strings.TrimSpace(t)))
		}
	}
	if raw := c.Query("job_type"); raw != "" {
		filter.JobTypes = strings.Split(raw, ",")
	}
	return filter
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key + " parameter")
	}
	return v, nil
}
