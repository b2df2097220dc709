package models

import (
	"strings"
	"time"
)

// Person is an identity known to the registry. ID never changes once
// assigned; Key is the normalized display name and may change on rename.
type Person struct {
	ID          string    `json:"id" db:"id"`
	Key         string    `json:"key" db:"name_key"`
	DisplayName string    `json:"display_name" db:"display_name"`
	FaceCount   int       `json:"face_count" db:"face_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type FaceEmbedding struct {
	ID         string    `json:"id" db:"id"`
	PersonID   string    `json:"person_id" db:"person_id"`
	Vector     []float32 `json:"vector" db:"embedding"`
	CropKey    string    `json:"crop_key" db:"crop_key"`
	Width      int       `json:"width" db:"width"`
	Height     int       `json:"height" db:"height"`
	Sharpness  float64   `json:"sharpness" db:"sharpness"`
	Source     string    `json:"source" db:"source"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}

func (f *FaceEmbedding) Validate() error {
	if f.PersonID == "" {
		return Invalid("face embedding has no person id")
	}
	if len(f.Vector) == 0 {
		return Invalid("face embedding has no vector")
	}
	return nil
}

// NormalizeName is the single key function for names: trimmed, lower-cased,
// internal whitespace collapsed to one space.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// IsUnknownName reports whether name carries no usable identity.
func IsUnknownName(name string) bool {
	n := NormalizeName(name)
	return n == "" || n == "unknown"
}

// PersonDistance is a person's closest embedding distance to a query.
type PersonDistance struct {
	PersonID    string  `json:"person_id"`
	Key         string  `json:"key"`
	DisplayName string  `json:"display_name"`
	Distance    float64 `json:"distance"`
}
