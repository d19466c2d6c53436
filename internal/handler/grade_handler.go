package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fazi-university/registry-api/internal/service"
	appErrors "github.com/fazi-university/registry-api/pkg/errors"
	"github.com/fazi-university/registry-api/pkg/response"
)

// GradeHandler exposes grade submission and finalization endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Submit godoc
// @Summary Record a provisional grade
// @Description Grades stay mutable until the section is finalized.
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/grade [put]
func (h *GradeHandler) Submit(c *gin.Context) {
	var req service.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.EnrollmentID = c.Param("id")

	enrollment, err := h.grades.SubmitGrade(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Finalize godoc
// @Summary Finalize all grades for a section
// @Description All-or-nothing: a single missing grade aborts the batch.
// @Tags Grades
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sections/{id}/finalize-grades [post]
func (h *GradeHandler) Finalize(c *gin.Context) {
	result, err := h.grades.FinalizeGrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
