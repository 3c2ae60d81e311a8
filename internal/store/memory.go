package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"vendor-chat-backend/internal/vendor"
)

// MemoryStore is an in-process vendor catalogue with the same lookups as
// DatabaseStore. The ask command uses it with a catalogue file, and tests
// use it as a relational fake.
type MemoryStore struct {
	mu            sync.RWMutex
	vendors       []vendor.VendorRecord
	reviews       map[string][]vendor.Review
	regionalTerms []string
}

func NewMemoryStore(regionalTerms []string) *MemoryStore {
	return &MemoryStore{
		reviews:       make(map[string][]vendor.Review),
		regionalTerms: lowerAll(regionalTerms),
	}
}

// Put adds or replaces vendors by id, keeping insertion order.
func (m *MemoryStore) Put(vs ...vendor.VendorRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vs {
		replaced := false
		for i := range m.vendors {
			if m.vendors[i].ID == v.ID {
				m.vendors[i] = v
				replaced = true
				break
			}
		}
		if !replaced {
			m.vendors = append(m.vendors, v)
		}
	}
}

func (m *MemoryStore) AddReviews(rs ...vendor.Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		m.reviews[r.VendorID] = append(m.reviews[r.VendorID], r)
	}
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vendors)
}

func (m *MemoryStore) VendorsByIDs(_ context.Context, ids []string) ([]vendor.VendorRecord, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.filter(func(v vendor.VendorRecord) bool { return want[v.ID] }), nil
}

func (m *MemoryStore) SearchByName(_ context.Context, name string, limit int) ([]vendor.VendorRecord, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	out := m.filter(func(v vendor.VendorRecord) bool {
		return strings.Contains(strings.ToLower(v.Name), name)
	})
	return truncate(byRating(out), limitOrDefault(limit)), nil
}

func (m *MemoryStore) VendorsByCategory(_ context.Context, category, locality string, limit int) ([]vendor.VendorRecord, error) {
	category = strings.ToLower(category)
	locality = strings.ToLower(locality)
	out := m.filter(func(v vendor.VendorRecord) bool {
		if category != "" && !strings.Contains(strings.ToLower(v.Category), category) {
			return false
		}
		if locality != "" &&
			!strings.Contains(strings.ToLower(v.Locality), locality) &&
			!strings.Contains(strings.ToLower(v.City), locality) {
			return false
		}
		return true
	})
	return truncate(byRating(out), limitOrDefault(limit)), nil
}

func (m *MemoryStore) GuideBucket(_ context.Context, category string, bucket vendor.Bucket, limit int) ([]vendor.VendorRecord, error) {
	category = strings.ToLower(category)
	inCategory := func(v vendor.VendorRecord) bool {
		return strings.Contains(strings.ToLower(v.Category), category)
	}

	var out []vendor.VendorRecord
	switch bucket {
	case vendor.BucketLuxury:
		out = m.filter(func(v vendor.VendorRecord) bool { return inCategory(v) && v.PriceMin != nil })
		sort.SliceStable(out, func(i, j int) bool { return *out[i].PriceMin > *out[j].PriceMin })
	case vendor.BucketVeg:
		out = m.filter(func(v vendor.VendorRecord) bool { return inCategory(v) && v.IsVeg != nil && *v.IsVeg })
		out = byRating(out)
	case vendor.BucketRegional:
		out = m.filter(func(v vendor.VendorRecord) bool { return inCategory(v) && m.isRegional(v) })
		out = byRating(out)
	case vendor.BucketBudget:
		out = m.filter(func(v vendor.VendorRecord) bool { return inCategory(v) && v.PriceMax != nil })
		sort.SliceStable(out, func(i, j int) bool { return *out[i].PriceMax < *out[j].PriceMax })
	default:
		return nil, fmt.Errorf("unknown guide bucket %q", bucket)
	}
	return truncate(out, limitOrDefault(limit)), nil
}

func (m *MemoryStore) ReviewsForVendor(_ context.Context, vendorID string, limit int) ([]vendor.Review, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("vendor_id is required")
	}
	m.mu.RLock()
	out := append([]vendor.Review(nil), m.reviews[vendorID]...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := limitOrDefault(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) isRegional(v vendor.VendorRecord) bool {
	text := strings.ToLower(v.Tags + " " + v.ShortDescription)
	for _, term := range m.regionalTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) filter(keep func(vendor.VendorRecord) bool) []vendor.VendorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vendor.VendorRecord
	for _, v := range m.vendors {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func byRating(vs []vendor.VendorRecord) []vendor.VendorRecord {
	rating := func(v vendor.VendorRecord) float64 {
		if v.Rating == nil {
			return 0
		}
		return *v.Rating
	}
	sort.SliceStable(vs, func(i, j int) bool { return rating(vs[i]) > rating(vs[j]) })
	return vs
}

func truncate(vs []vendor.VendorRecord, n int) []vendor.VendorRecord {
	if len(vs) > n {
		return vs[:n]
	}
	return vs
}
