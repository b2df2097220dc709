package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/recall/internal/service"
	"github.com/your-org/recall/pkg/dto"
)

const videoField = "video"

type VideoHandler struct {
	svc       *service.Service
	uploadDir string
}

func NewVideoHandler(svc *service.Service, uploadDir string) *VideoHandler {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &VideoHandler{svc: svc, uploadDir: uploadDir}
}

// Process runs the pipeline on the uploaded video before responding.
func (h *VideoHandler) Process(c *gin.Context) {
	header, err := c.FormFile(videoField)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	path := filepath.Join(h.uploadDir, uuid.NewString()+filepath.Ext(header.Filename))
	if err := c.SaveUploadedFile(header, path); err != nil {
		writeError(c, err)
		return
	}
	defer os.Remove(path)

	res, err := h.svc.ProcessVideo(c.Request.Context(), path)
	if err != nil {
		if res != nil && res.TranscriptError != "" && res.FaceError != "" {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "result": res})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Submit stores the video and queues it. The result is pushed over the
// WebSocket once a worker finishes.
func (h *VideoHandler) Submit(c *gin.Context) {
	header, err := c.FormFile(videoField)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	f, err := header.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	job, err := h.svc.SubmitVideo(c.Request.Context(), header.Filename, f, header.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.VideoAccepted{
		JobID:     job.JobID,
		ObjectKey: job.ObjectKey,
		Filename:  job.Filename,
		WSURL:     "/v1/ws?job_id=" + job.JobID,
	})
}

func writeUploadError(c *gin.Context, err error) {
	if statusFor(err) == http.StatusRequestEntityTooLarge {
		writeError(c, err)
		return
	}
	badRequest(c, videoField+" file required")
}
