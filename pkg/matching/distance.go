package matching

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/MrCodeEU/attendface/pkg/storage"
)

// ErrDimensionMismatch is returned when two vectors cannot be compared.
var ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

// Distance returns the plain L2 distance between two descriptors.
func Distance(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	return floats.Distance(a, b, 2), nil
}

// candidate is the nearest stored embedding found by a scan.
type candidate struct {
	identityKey int64
	distance    float64
}

// nearest scans every stored embedding. Equal distances resolve to the
// lowest identity key, independent of the order the store returned them in.
func nearest(query []float64, gallery []storage.Embedding) (candidate, error) {
	best := candidate{identityKey: -1}
	found := false

	for _, e := range gallery {
		d, err := Distance(query, e.Vector)
		if err != nil {
			return candidate{}, fmt.Errorf("identity %d: %w", e.IdentityKey, err)
		}
		if !found || d < best.distance || (d == best.distance && e.IdentityKey < best.identityKey) {
			best = candidate{identityKey: e.IdentityKey, distance: d}
			found = true
		}
	}

	if !found {
		return candidate{}, storage.ErrNotFound
	}
	return best, nil
}
