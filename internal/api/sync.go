package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/model"
)

// SyncData runs a sync inline. A run that fails after starting still
// returns its partial results next to the error.
func (h *Handler) SyncData(c *gin.Context) {
	var req model.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	resp, err := h.sync.SyncData(c.Request.Context(), actorID(c), req)
	if err != nil {
		if resp == nil {
			h.respondError(c, err)
			return
		}
		status, code := classify(err)
		c.JSON(status, gin.H{"error": resp.Error, "code": code, "result": resp})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// QueueSync hands the request to the sync worker. Only the permission
// check runs here; the worker applies the remaining checks.
func (h *Handler) QueueSync(c *gin.Context) {
	var req model.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	scope := auth.SystemCourse
	if req.CourseID != nil {
		scope = *req.CourseID
	}
	if err := h.authz.Require(c.Request.Context(), actorID(c), scope, auth.CapSISSync); err != nil {
		h.respondError(c, err)
		return
	}

	job := model.SyncJob{
		RequestID:  uuid.New().String(),
		ActorID:    actorID(c),
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.jobs.EnqueueSyncJob(c.Request.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue sync job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue sync job", "code": "internal_error"})
		return
	}

	h.log.Info().
		Str("request_id", job.RequestID).
		Str("sync_type", string(req.SyncType)).
		Str("direction", string(req.Direction)).
		Msg("Sync job enqueued")

	c.JSON(http.StatusAccepted, gin.H{"message": "Sync job queued", "job": job})
}

type pushRequest struct {
	UserID *int64 `json:"user_id"`
}

func (h *Handler) PushGrades(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	var req pushRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	result, err := h.sync.PushGrades(c.Request.Context(), actorID(c), courseID, req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type pullEnrollmentsRequest struct {
	Term       string `json:"term"`
	CourseCode string `json:"course_code"`
}

func (h *Handler) PullEnrollments(c *gin.Context) {
	var req pullEnrollmentsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	result, err := h.sync.PullEnrollments(c.Request.Context(), actorID(c), req.Term, req.CourseCode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListSyncLogs supports ?sync_type, ?status, ?course_id and ?limit.
func (h *Handler) ListSyncLogs(c *gin.Context) {
	courseID, ok := optionalInt64(c, "course_id")
	if !ok {
		return
	}
	filter := db.SyncLogFilter{
		SyncType: model.SyncType(c.Query("sync_type")),
		Status:   model.SyncStatus(c.Query("status")),
		CourseID: courseID,
		Limit:    50,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			badRequest(c, "Invalid limit")
			return
		}
		filter.Limit = n
	}

	logs, err := h.sync.ListLogs(c.Request.Context(), actorID(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
