package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ieap-grade-sync/internal/auth"
	"ieap-grade-sync/internal/excel"
	"ieap-grade-sync/internal/model"
	"ieap-grade-sync/internal/storage"
)

// ImportGrades stores an uploaded sheet and queues it for the ingestion
// worker. The multipart field is "file".
func (h *Handler) ImportGrades(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	actor := actorID(c)

	if err := h.authz.Require(ctx, actor, courseID, auth.CapGradeEdit); err != nil {
		h.respondError(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Missing file")
		return
	}
	parser, err := excel.StrategyFor(header.Filename)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if header.Size > h.cfg.Server.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large", "code": "file_too_large"})
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, "Unreadable file")
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		badRequest(c, "Unreadable file")
		return
	}

	key := storage.ImportKey(courseID, header.Filename)
	if err := h.storage.Upload(ctx, key, parser.ContentType(), bytes.NewReader(data)); err != nil {
		h.respondError(c, err)
		return
	}

	fileID, err := h.files.CreateFile(ctx, &model.ImportFile{
		CourseID:   courseID,
		S3Path:     key,
		UploadedBy: actor,
		Status:     model.FileStatusUploaded,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	job := model.IngestionJob{FileID: fileID, S3Path: key, CourseID: courseID, ActorID: actor}
	if err := h.jobs.EnqueueIngestionJob(ctx, job); err != nil {
		msg := fmt.Sprintf("failed to queue import: %v", err)
		if statusErr := h.files.UpdateFileStatus(ctx, fileID, model.FileStatusFailed, 0, 0, &msg); statusErr != nil {
			h.log.Error().Err(statusErr).Int64("file_id", fileID).Msg("Failed to mark unqueued import as failed")
		}
		h.respondError(c, err)
		return
	}

	h.log.Info().Int64("file_id", fileID).Int64("course_id", courseID).Str("s3_path", key).Msg("Grade sheet queued for import")
	c.JSON(http.StatusAccepted, gin.H{"file_id": fileID, "status": model.FileStatusUploaded})
}

func (h *Handler) GetImportStatus(c *gin.Context) {
	fileID, err := strconv.ParseInt(c.Param("file_id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid file ID")
		return
	}

	file, err := h.files.GetFile(c.Request.Context(), fileID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.authz.Require(c.Request.Context(), actorID(c), file.CourseID, auth.CapGradeView); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ImportStatusResponse{
		FileID:        file.ID,
		CourseID:      file.CourseID,
		Status:        file.Status,
		TotalRecords:  file.TotalRecords,
		ImportedCount: file.ImportedCount,
		Error:         file.ErrorMessage,
		UpdatedAt:     file.UpdatedAt,
	})
}
