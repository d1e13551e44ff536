package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/acadrec-api/internal/service"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
	"github.com/noah-isme/acadrec-api/pkg/response"
)

// TranscriptHandler exposes transcript and GPA endpoints.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Get godoc
// @Summary Student transcript with weighted GPA
// @Tags Transcripts
// @Produce json
// @Param id path string true "Student ID"
// @Param format query string false "Export format (csv or pdf)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *TranscriptHandler) Get(c *gin.Context) {
	studentID := c.Param("id")
	switch c.Query("format") {
	case "":
		transcript, err := h.transcripts.Generate(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, transcript, nil)
	case "csv":
		data, err := h.transcripts.ExportCSV(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcript-%s.csv", studentID))
		c.Data(http.StatusOK, "text/csv", data)
	case "pdf":
		data, err := h.transcripts.ExportPDF(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcript-%s.pdf", studentID))
		c.Data(http.StatusOK, "application/pdf", data)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported format, use csv or pdf"))
	}
}
