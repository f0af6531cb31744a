// Package store persists statement snapshots keyed by statement kind,
// company and year, along with saved comparison settings.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/yurifrl/mizan/pkg/models"
)

// ErrNotFound is returned by Fetch when no snapshot was saved for the key.
var ErrNotFound = errors.New("statement not found")

// Store is the statement store. The most recent Save for a key wins.
type Store interface {
	Fetch(ctx context.Context, kind models.Kind, company string, year int) (models.Snapshot, error)
	Save(ctx context.Context, kind models.Kind, company string, year int, snap models.Snapshot) error
	// Reset deletes the snapshot for the key. Resetting a missing key is not
	// an error.
	Reset(ctx context.Context, kind models.Kind, company string, year int) error
	// Companies lists every company that has been saved, by name.
	Companies(ctx context.Context) ([]string, error)
	SaveComparison(ctx context.Context, c models.Comparison) error
	// Comparisons lists the saved comparisons of company, newest first.
	Comparisons(ctx context.Context, company string) ([]models.Comparison, error)
	Close() error
}

func normalizeCompany(company string) (string, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return "", errors.New("company is required")
	}
	return company, nil
}

// clone deep-copies snap so callers cannot alias stored state.
func clone(snap models.Snapshot) models.Snapshot {
	out := models.Snapshot{
		Static: make(models.Fields, len(snap.Static)),
		Custom: make([]models.CustomField, len(snap.Custom)),
	}
	for k, v := range snap.Static {
		out.Static[k] = v
	}
	copy(out.Custom, snap.Custom)
	return out
}
