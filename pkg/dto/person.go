package dto

type RenameRequest struct {
	OldName string `json:"old_name" binding:"required"`
	NewName string `json:"new_name" binding:"required"`
}

type RenameResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
}

// IdentifyRequest carries a raw embedding. Image uploads use multipart
// field "image" instead.
type IdentifyRequest struct {
	Embedding []float32 `json:"embedding" binding:"required"`
}

type EnrollRequest struct {
	Name      string    `json:"name" binding:"required"`
	Embedding []float32 `json:"embedding" binding:"required"`
}

type Candidate struct {
	PersonID string  `json:"person_id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

type IdentifyResponse struct {
	Known      bool        `json:"known"`
	Name       string      `json:"name,omitempty"`
	PersonID   string      `json:"person_id,omitempty"`
	Distance   float64     `json:"distance"`
	Candidates []Candidate `json:"candidates"`
}

type PersonResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name"`
	FaceCount int    `json:"face_count"`
	CreatedAt string `json:"created_at"`
}

type ProfileRequest struct {
	Force bool `json:"force"`
}
