package models

import "time"

const (
	FaceStatusExisting = "existing"
	FaceStatusNew      = "new"
)

// FaceCapture is the best face found in a video.
type FaceCapture struct {
	Embedding []float32 `json:"-"`
	CropKey   string    `json:"crop_key"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Sharpness float64   `json:"sharpness"`
}

// ProcessResult combines identity resolution and dialogue extraction for one
// video. Either side may carry an error while the other still holds data.
type ProcessResult struct {
	Name         string   `json:"name"`
	FaceName     string   `json:"face_name,omitempty"`
	FaceStatus   string   `json:"face_status,omitempty"`
	PersonID     string   `json:"person_id,omitempty"`
	Distance     *float64 `json:"distance,omitempty"`
	CropKey      string   `json:"crop_key,omitempty"`
	AutoEnrolled bool     `json:"auto_enrolled"`
	EnrollError  string   `json:"enroll_error,omitempty"`

	GuessedName          string   `json:"guessed_name,omitempty"`
	Conversation         []Turn   `json:"conversation"`
	Keywords             []string `json:"keywords,omitempty"`
	Headline             string   `json:"headline,omitempty"`
	HasLinkedInPotential bool     `json:"has_linkedin_potential"`

	TranscriptError string `json:"transcript_error,omitempty"`
	FaceError       string `json:"face_error,omitempty"`

	Timestamp  int64       `json:"timestamp"`
	Highlights []Highlight `json:"highlights,omitempty"`
}

// VideoJob is the message published to NATS for asynchronous processing.
type VideoJob struct {
	JobID       string    `json:"job_id"`
	ObjectKey   string    `json:"object_key"` // MinIO key of the uploaded video
	Filename    string    `json:"filename"`
	SubmittedAt time.Time `json:"submitted_at"`
}

const (
	JobStatusDone   = "done"
	JobStatusFailed = "failed"
)

// JobResult is published once a worker finishes a VideoJob.
type JobResult struct {
	JobID      string         `json:"job_id"`
	Status     string         `json:"status"`
	Result     *ProcessResult `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}
