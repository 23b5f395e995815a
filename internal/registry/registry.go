package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"momopay/internal/domain"
)

// Registry is the read-only provider catalog. It is safe for concurrent use.
type Registry struct {
	providers []domain.ProviderDescriptor
	byID      map[string]int
}

// New builds a Registry, rejecting duplicate ids and malformed prefixes.
func New(descs []domain.ProviderDescriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(descs))}
	for _, d := range descs {
		d.ID = strings.ToLower(strings.TrimSpace(d.ID))
		if d.ID == "" {
			return nil, fmt.Errorf("registry: provider with empty id")
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate provider %q", d.ID)
		}
		if len(d.Prefixes) == 0 {
			return nil, fmt.Errorf("registry: provider %q has no prefixes", d.ID)
		}
		for _, p := range d.Prefixes {
			if !strings.HasPrefix(p, "+") || len(p) < 2 {
				return nil, fmt.Errorf("registry: provider %q prefix %q must be +<digits>", d.ID, p)
			}
		}
		d.Prefixes = append([]string(nil), d.Prefixes...)
		r.byID[d.ID] = len(r.providers)
		r.providers = append(r.providers, d)
	}
	return r, nil
}

// ListProviders returns every registered provider in catalog order.
func (r *Registry) ListProviders() []domain.ProviderDescriptor {
	out := make([]domain.ProviderDescriptor, len(r.providers))
	copy(out, r.providers)
	return out
}

// GetProvider returns the descriptor for id or domain.ErrProviderNotFound.
func (r *Registry) GetProvider(id string) (domain.ProviderDescriptor, error) {
	i, ok := r.byID[strings.ToLower(id)]
	if !ok {
		return domain.ProviderDescriptor{}, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, id)
	}
	return r.providers[i], nil
}

// Filter keeps only the catalog entries whose id is in enabled, preserving order.
func Filter(catalog []domain.ProviderDescriptor, enabled []string) []domain.ProviderDescriptor {
	want := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		want[strings.ToLower(id)] = true
	}
	var out []domain.ProviderDescriptor
	for _, d := range catalog {
		if want[strings.ToLower(d.ID)] {
			out = append(out, d)
		}
	}
	return out
}

// LoadCatalog reads a JSON array of provider descriptors from path.
func LoadCatalog(path string) ([]domain.ProviderDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider catalog: %w", err)
	}
	var out []domain.ProviderDescriptor
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode provider catalog: %w", err)
	}
	return out, nil
}
