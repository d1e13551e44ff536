package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/acadrec-api/internal/service"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
	"github.com/noah-isme/acadrec-api/pkg/response"
)

// FacultyHandler exposes faculty endpoints.
type FacultyHandler struct {
	faculties *service.FacultyService
}

// NewFacultyHandler constructs FacultyHandler.
func NewFacultyHandler(faculties *service.FacultyService) *FacultyHandler {
	return &FacultyHandler{faculties: faculties}
}

// List godoc
// @Summary List faculties
// @Tags Faculties
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculties [get]
func (h *FacultyHandler) List(c *gin.Context) {
	faculties, err := h.faculties.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculties, nil)
}

// Create godoc
// @Summary Create faculty
// @Tags Faculties
// @Accept json
// @Produce json
// @Param payload body service.FacultyRequest true "Faculty payload"
// @Success 201 {object} response.Envelope
// @Router /faculties [post]
func (h *FacultyHandler) Create(c *gin.Context) {
	var req service.FacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	faculty, err := h.faculties.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, faculty)
}

// Update godoc
// @Summary Update faculty
// @Tags Faculties
// @Accept json
// @Produce json
// @Param id path string true "Faculty ID"
// @Param payload body service.FacultyRequest true "Faculty payload"
// @Success 200 {object} response.Envelope
// @Router /faculties/{id} [put]
func (h *FacultyHandler) Update(c *gin.Context) {
	var req service.FacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	faculty, err := h.faculties.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty, nil)
}
