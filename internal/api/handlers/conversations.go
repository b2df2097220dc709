package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/service"
	"github.com/your-org/recall/pkg/dto"
)

type ConversationHandler struct {
	svc *service.Service
}

func NewConversationHandler(svc *service.Service) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func (h *ConversationHandler) Get(c *gin.Context) {
	name := c.Param("name")
	entries, err := h.svc.GetConversation(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":    models.NormalizeName(name),
		"entries": entries,
		"total":   len(entries),
	})
}

// Enrich looks up a public profile for the person. force comes from the
// JSON body or the query string.
func (h *ConversationHandler) Enrich(c *gin.Context) {
	var req dto.ProfileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if f, err := strconv.ParseBool(c.Query("force")); err == nil && f {
		req.Force = true
	}

	res, err := h.svc.EnrichProfile(c.Request.Context(), c.Param("name"), req.Force)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
