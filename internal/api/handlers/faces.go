package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/recall/internal/registry"
	"github.com/your-org/recall/internal/service"
	"github.com/your-org/recall/pkg/dto"
)

const maxCandidates = 5

type FaceHandler struct {
	svc *service.Service
}

func NewFaceHandler(svc *service.Service) *FaceHandler {
	return &FaceHandler{svc: svc}
}

// Identify accepts either a JSON embedding or a multipart "image".
func (h *FaceHandler) Identify(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		id  *registry.Identification
		err error
	)
	if isMultipart(c) {
		data, ok := readImage(c)
		if !ok {
			return
		}
		id, err = h.svc.IdentifyImage(ctx, data)
	} else {
		var req dto.IdentifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err = h.svc.IdentifyFace(ctx, req.Embedding)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, identifyResponse(id))
}

// Enroll accepts either JSON {name, embedding} or a multipart "image" with
// a "name" field.
func (h *FaceHandler) Enroll(c *gin.Context) {
	ctx := c.Request.Context()

	if isMultipart(c) {
		name := c.PostForm("name")
		if name == "" {
			badRequest(c, "name is required")
			return
		}
		data, ok := readImage(c)
		if !ok {
			return
		}
		p, err := h.svc.EnrollImage(ctx, data, name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, personResponse(p.ID, p.Key, p.DisplayName, p.FaceCount, p.CreatedAt))
		return
	}

	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.svc.EnrollFace(ctx, req.Embedding, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, personResponse(p.ID, p.Key, p.DisplayName, p.FaceCount, p.CreatedAt))
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == "multipart/form-data"
}

func readImage(c *gin.Context) ([]byte, bool) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		writeUploadError(c, err)
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return nil, false
	}
	return data, true
}

func identifyResponse(id *registry.Identification) dto.IdentifyResponse {
	out := dto.IdentifyResponse{
		Known:      id.Known,
		Distance:   id.Best.Distance,
		Candidates: make([]dto.Candidate, 0, min(len(id.Candidates), maxCandidates)),
	}
	if id.Known {
		out.Name = id.Best.DisplayName
		out.PersonID = id.Best.PersonID
	}
	for i, cand := range id.Candidates {
		if i == maxCandidates {
			break
		}
		out.Candidates = append(out.Candidates, dto.Candidate{
			PersonID: cand.PersonID,
			Name:     cand.DisplayName,
			Distance: cand.Distance,
		})
	}
	return out
}
