package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

const distanceEpsilon = 1e-12

// Identification is the ranked outcome of matching one embedding.
type Identification struct {
	Candidates []models.PersonDistance `json:"candidates"`
	Best       models.PersonDistance   `json:"best"`
	Known      bool                    `json:"is_known"`
}

// CosineDistance returns 1 - cos(a, b), in [0, 2], after L2-normalizing
// both vectors. Vectors must share a length. A zero vector is at distance 1
// from everything. Rounding residue below 1e-12 is reported as 0, so a
// vector is always at distance exactly 0 from itself.
func CosineDistance(a, b []float32) float64 {
	var na, nb float64
	for i := range a {
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	na, nb = math.Sqrt(na), math.Sqrt(nb)

	var dot float64
	for i := range a {
		dot += (float64(a[i]) / na) * (float64(b[i]) / nb)
	}
	d := 1 - dot
	switch {
	case d < distanceEpsilon:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// Identify ranks every enrolled person by their closest embedding to query.
// The best candidate is known when its distance is strictly below threshold.
func (r *Registry) Identify(ctx context.Context, query []float32, threshold float64) (*Identification, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("identify: %w", models.ErrEmptyInput)
	}

	var (
		ranked []models.PersonDistance
		err    error
	)
	if ns, ok := r.store.(nearestSearcher); ok {
		if err := r.checkDim(ctx, len(query), false); err != nil {
			if errors.Is(err, models.ErrEmptyRegistry) {
				observability.IdentifyOutcomes.WithLabelValues("empty_registry").Inc()
			}
			return nil, fmt.Errorf("identify: %w", err)
		}
		ranked, err = ns.NearestPersons(ctx, query)
	} else {
		ranked, err = r.rank(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	if len(ranked) == 0 {
		observability.IdentifyOutcomes.WithLabelValues("empty_registry").Inc()
		return nil, fmt.Errorf("identify: %w", models.ErrEmptyRegistry)
	}

	id := &Identification{
		Candidates: ranked,
		Best:       ranked[0],
		Known:      ranked[0].Distance < threshold,
	}
	if id.Known {
		observability.IdentifyOutcomes.WithLabelValues("known").Inc()
	} else {
		observability.IdentifyOutcomes.WithLabelValues("unknown").Inc()
	}
	return id, nil
}

func (r *Registry) rank(ctx context.Context, query []float32) ([]models.PersonDistance, error) {
	faces, err := r.store.ListFaceEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, nil
	}

	best := make(map[string]float64)
	for _, fe := range faces {
		if len(fe.Vector) != len(query) {
			return nil, models.Invalid("query has %d dimensions, stored embedding %s has %d",
				len(query), fe.ID, len(fe.Vector))
		}
		d := CosineDistance(query, fe.Vector)
		if cur, ok := best[fe.PersonID]; !ok || d < cur {
			best[fe.PersonID] = d
		}
	}

	persons, err := r.store.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	ranked := make([]models.PersonDistance, 0, len(best))
	for _, p := range persons {
		d, ok := best[p.ID]
		if !ok {
			continue
		}
		ranked = append(ranked, models.PersonDistance{
			PersonID:    p.ID,
			Key:         p.Key,
			DisplayName: p.DisplayName,
			Distance:    d,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.PersonID < b.PersonID
	})
	return ranked, nil
}
