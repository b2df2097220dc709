package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/service"
	"github.com/your-org/recall/pkg/dto"
)

type HighlightHandler struct {
	svc *service.Service
}

func NewHighlightHandler(svc *service.Service) *HighlightHandler {
	return &HighlightHandler{svc: svc}
}

func (h *HighlightHandler) List(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = n
	}

	items, err := h.svc.ListHighlights(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []models.UpcomingHighlight{}
	}
	c.JSON(http.StatusOK, gin.H{"highlights": items, "total": len(items)})
}

func (h *HighlightHandler) SetStatus(c *gin.Context) {
	var req dto.HighlightStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	hl, err := h.svc.SetHighlightStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hl)
}
