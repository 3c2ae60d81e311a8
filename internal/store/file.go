package store

import (
	"encoding/json"
	"fmt"
	"os"

	"vendor-chat-backend/internal/vendor"
)

// Catalog is the on-disk fixture format for a MemoryStore.
type Catalog struct {
	Vendors []vendor.VendorRecord `json:"vendors"`
	Reviews []vendor.Review       `json:"reviews,omitempty"`
}

// LoadCatalogFile reads a JSON catalogue into a new MemoryStore.
func LoadCatalogFile(path string, regionalTerms []string) (*MemoryStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for i, v := range c.Vendors {
		if v.ID == "" {
			return nil, fmt.Errorf("catalog vendor %d has no id", i)
		}
	}
	m := NewMemoryStore(regionalTerms)
	m.Put(c.Vendors...)
	m.AddReviews(c.Reviews...)
	return m, nil
}
