package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/recall/internal/service"
	"github.com/your-org/recall/pkg/dto"
)

type PeopleHandler struct {
	svc *service.Service
}

func NewPeopleHandler(svc *service.Service) *PeopleHandler {
	return &PeopleHandler{svc: svc}
}

func (h *PeopleHandler) List(c *gin.Context) {
	people, err := h.svc.ListPeople(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"people": people, "total": len(people)})
}

// Face serves the newest stored crop of a person.
func (h *PeopleHandler) Face(c *gin.Context) {
	data, err := h.svc.FaceImage(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *PeopleHandler) Rename(c *gin.Context) {
	var req dto.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.RenamePerson(c.Request.Context(), req.OldName, req.NewName); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RenameResponse{Status: "renamed", Name: req.NewName})
}

func personResponse(id, key, name string, faces int, created time.Time) dto.PersonResponse {
	return dto.PersonResponse{
		ID:        id,
		Key:       key,
		Name:      name,
		FaceCount: faces,
		CreatedAt: created.UTC().Format(time.RFC3339),
	}
}
