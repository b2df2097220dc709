package dto

type AskRequest struct {
	Question string `json:"question" binding:"required"`
	Person   string `json:"person"`
}

type HighlightStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// VideoAccepted is returned when a video is queued for a worker.
type VideoAccepted struct {
	JobID     string `json:"job_id"`
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
	WSURL     string `json:"ws_url"`
}

// WSEvent is a WebSocket message announcing a finished video job.
type WSEvent struct {
	Type   string `json:"type"` // job_done, job_failed
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}
