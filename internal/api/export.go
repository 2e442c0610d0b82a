package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rfmoraes/clinic-exams/internal/exam"
)

const xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExportXLSX renders the posted exam as a downloadable workbook.
func (s *Server) handleExportXLSX(c *gin.Context) {
	var e exam.Exam
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed exam payload"})
		return
	}

	data, err := s.exporter.ExamXLSX(&e)
	if err != nil {
		s.log.Error("xlsx export failed", "exam_id", e.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	name := e.Title
	if name == "" {
		name = "exame"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
	c.Data(http.StatusOK, xlsxMediaType, data)
}
