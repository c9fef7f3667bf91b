package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ieap-grade-sync/internal/excel"
	"ieap-grade-sync/internal/model"
)


// CreateStructure builds a composite structure. The course in the path wins
// over one in the body.
func (h *Handler) CreateStructure(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	var req model.CreateStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	req.CourseID = courseID

	result, err := h.composite.CreateStructure(c.Request.Context(), actorID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "structure": result})
}

type templateRequest struct {
	Level     model.Level        `json:"ieap_level" binding:"required"`
	Overrides map[string]float64 `json:"customizations"`
}

func (h *Handler) CreateFromTemplate(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	result, err := h.composite.CreateFromTemplate(c.Request.Context(), actorID(c), courseID, req.Level, req.Overrides)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "structure": result})
}

func (h *Handler) DeactivateStructure(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	if err := h.composite.DeactivateStructure(c.Request.Context(), actorID(c), courseID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetGrades returns composite grades; ?user_id narrows to one learner and
// ?breakdown=false drops the per-component detail.
func (h *Handler) GetGrades(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	userID, ok := optionalInt64(c, "user_id")
	if !ok {
		return
	}
	breakdown := true
	if raw := c.Query("breakdown"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid breakdown")
			return
		}
		breakdown = b
	}

	report, err := h.composite.GetGrades(c.Request.Context(), actorID(c), courseID, userID, breakdown)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ExportGrades(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	report, err := h.composite.GetGrades(c.Request.Context(), actorID(c), courseID, nil, true)
	if err != nil {
		h.respondError(c, err)
		return
	}
	data, err := excel.WriteReport(report)
	if err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("grades-%d-%s.xlsx", courseID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, excel.XLSXContentType, data)
}

type updateGradesRequest struct {
	Grades []model.GradeUpdate `json:"grades" binding:"required,min=1,dive"`
}

func (h *Handler) UpdateGrades(c *gin.Context) {
	var req updateGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	results, err := h.composite.UpdateGrades(c.Request.Context(), actorID(c), req.Grades)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

func (h *Handler) GetTemplates(c *gin.Context) {
	resp, err := h.composite.GetTemplates(c.Request.Context(), actorID(c), model.Level(c.Query("level")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) DetectLevel(c *gin.Context) {
	courseID, ok := courseParam(c)
	if !ok {
		return
	}
	resp, err := h.composite.DetectLevel(c.Request.Context(), actorID(c), courseID, c.Query("course_name"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
