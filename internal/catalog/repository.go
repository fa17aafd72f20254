// Package catalog resolves practice and region names to their store ids.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

// Store is the slice of the persistence layer the catalog needs.
type Store interface {
	// FindCatalogID looks name up case-insensitively; found is false on a miss.
	FindCatalogID(ctx context.Context, kind models.CatalogKind, name string) (id int, found bool, err error)
	InsertCatalogEntry(ctx context.Context, kind models.CatalogKind, name string) (int, error)
}

// Policy says which catalog kinds may grow on a miss.
type Policy struct {
	CreatePractices bool
	CreateRegions   bool
}

func (p Policy) allows(kind models.CatalogKind) bool {
	if kind == models.RegionCatalog {
		return p.CreateRegions
	}
	return p.CreatePractices
}

// Repository caches name->id lookups for the lifetime of one run. It is safe for concurrent use.
type Repository struct {
	store  Store
	policy Policy

	mu    sync.Mutex
	cache map[models.CatalogKind]map[string]int
}

func NewRepository(store Store, policy Policy) *Repository {
	return &Repository{
		store:  store,
		policy: policy,
		cache: map[models.CatalogKind]map[string]int{
			models.PracticeCatalog: {},
			models.RegionCatalog:   {},
		},
	}
}

// GetOrCreate returns the id for name, inserting it when the policy allows. A miss that may
// not be created yields models.ErrUnknownPractice or models.ErrUnknownRegion.
func (r *Repository) GetOrCreate(ctx context.Context, kind models.CatalogKind, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", unknownErr(kind))
	}
	k := strings.ToLower(name)

	// Held across the store round trip so two workers cannot insert the same name.
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.cache[kind][k]; ok {
		return id, nil
	}

	id, found, err := r.store.FindCatalogID(ctx, kind, name)
	if err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", kind, name, err)
	}
	if !found {
		if !r.policy.allows(kind) {
			return 0, fmt.Errorf("%w: %q", unknownErr(kind), name)
		}
		id, err = r.store.InsertCatalogEntry(ctx, kind, name)
		if err != nil {
			return 0, fmt.Errorf("create %s %q: %w", kind, name, err)
		}
	}

	r.cache[kind][k] = id
	return id, nil
}

func unknownErr(kind models.CatalogKind) error {
	if kind == models.RegionCatalog {
		return models.ErrUnknownRegion
	}
	return models.ErrUnknownPractice
}
