// Package registry keeps the persons known by face and matches new face
// embeddings against them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/recall/internal/keylock"
	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

// Store persists persons and their embeddings. Implementations return
// models.ErrNotFound for missing records and models.ErrConflict when a name
// key is already taken.
type Store interface {
	CreatePerson(ctx context.Context, p *models.Person) error
	GetPerson(ctx context.Context, id string) (*models.Person, error)
	GetPersonByKey(ctx context.Context, key string) (*models.Person, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	RenamePerson(ctx context.Context, oldKey, newKey, displayName string) error
	AddFaceEmbedding(ctx context.Context, fe *models.FaceEmbedding) error
	ListFaceEmbeddings(ctx context.Context) ([]models.FaceEmbedding, error)
	LatestFace(ctx context.Context, personID string) (*models.FaceEmbedding, error)
}

// nearestSearcher is implemented by stores that can aggregate distances
// themselves (pgvector).
type nearestSearcher interface {
	NearestPersons(ctx context.Context, query []float32) ([]models.PersonDistance, error)
}

type Registry struct {
	store Store
	locks *keylock.Locks

	mu  sync.Mutex
	dim int
}

// New wraps store. A dim of 0 fixes the dimension from the first embedding
// seen.
func New(store Store, dim int) *Registry {
	return &Registry{
		store: store,
		locks: keylock.New(),
		dim:   dim,
	}
}

type EnrollRequest struct {
	Embedding []float32
	Name      string
	CropKey   string
	Width     int
	Height    int
	Sharpness float64
	Source    string
}

// Enroll adds an embedding under name, creating the person on first sight.
func (r *Registry) Enroll(ctx context.Context, req EnrollRequest) (*models.Person, error) {
	if len(req.Embedding) == 0 {
		return nil, fmt.Errorf("enroll: %w", models.ErrEmptyInput)
	}
	key := models.NormalizeName(req.Name)
	if key == "" {
		return nil, models.Invalid("enroll: name is empty")
	}
	if err := r.checkDim(ctx, len(req.Embedding), true); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	unlock := r.locks.Lock(key)
	defer unlock()

	person, err := r.store.GetPersonByKey(ctx, key)
	kind := "existing_person"
	switch {
	case errors.Is(err, models.ErrNotFound):
		person = &models.Person{
			ID:          uuid.New().String(),
			Key:         key,
			DisplayName: displayName(req.Name),
		}
		if err := r.store.CreatePerson(ctx, person); err != nil {
			return nil, fmt.Errorf("enroll: %w", err)
		}
		kind = "new_person"
	case err != nil:
		return nil, fmt.Errorf("enroll: %w", err)
	}

	fe := &models.FaceEmbedding{
		ID:        uuid.New().String(),
		PersonID:  person.ID,
		Vector:    req.Embedding,
		CropKey:   req.CropKey,
		Width:     req.Width,
		Height:    req.Height,
		Sharpness: req.Sharpness,
		Source:    req.Source,
	}
	if err := fe.Validate(); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	if err := r.store.AddFaceEmbedding(ctx, fe); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}
	person.FaceCount++

	observability.Enrollments.WithLabelValues(kind).Inc()
	slog.Info("face enrolled", "person_id", person.ID, "name", person.DisplayName, "kind", kind)
	return person, nil
}

// Rename re-keys a person. It fails with ErrNotFound when oldName is not
// enrolled and ErrConflict when newName already is.
func (r *Registry) Rename(ctx context.Context, oldName, newName string) error {
	oldKey, newKey := models.NormalizeName(oldName), models.NormalizeName(newName)
	if oldKey == "" || newKey == "" {
		return models.Invalid("rename: names must not be empty")
	}

	unlock := r.locks.Lock(oldKey, newKey)
	defer unlock()

	if err := r.store.RenamePerson(ctx, oldKey, newKey, displayName(newName)); err != nil {
		return fmt.Errorf("rename %q: %w", oldKey, err)
	}
	return nil
}

// Exists reports whether a person is enrolled under name.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.store.GetPersonByKey(ctx, models.NormalizeName(name))
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Registry) ListPersons(ctx context.Context) ([]models.Person, error) {
	return r.store.ListPersons(ctx)
}

// LatestFace returns the most recent embedding with a stored crop for name.
func (r *Registry) LatestFace(ctx context.Context, name string) (*models.FaceEmbedding, error) {
	p, err := r.store.GetPersonByKey(ctx, models.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	return r.store.LatestFace(ctx, p.ID)
}

// checkDim enforces one embedding dimensionality across the registry. Only
// enrollment (fix) may set the dimension of an empty registry; a lookup
// against one fails with ErrEmptyRegistry.
func (r *Registry) checkDim(ctx context.Context, n int, fix bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dim == 0 {
		faces, err := r.store.ListFaceEmbeddings(ctx)
		if err != nil {
			return err
		}
		if len(faces) == 0 {
			if !fix {
				return models.ErrEmptyRegistry
			}
			r.dim = n
			return nil
		}
		r.dim = len(faces[0].Vector)
	}
	if n != r.dim {
		return models.Invalid("embedding has %d dimensions, registry uses %d", n, r.dim)
	}
	return nil
}

func displayName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
