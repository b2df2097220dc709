package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/recall/internal/service"
	"github.com/your-org/recall/pkg/dto"
)

type AssistantHandler struct {
	svc *service.Service
}

func NewAssistantHandler(svc *service.Service) *AssistantHandler {
	return &AssistantHandler{svc: svc}
}

func (h *AssistantHandler) Ask(c *gin.Context) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ans, err := h.svc.AskAssistant(c.Request.Context(), req.Question, req.Person)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ans)
}
