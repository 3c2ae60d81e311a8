package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-chat-backend/internal/db"
	"vendor-chat-backend/internal/vendor"
)

const testSchema = `
CREATE TABLE vendors (
	id TEXT PRIMARY KEY,
	name TEXT,
	category TEXT,
	city TEXT,
	locality TEXT,
	price_min REAL,
	price_max REAL,
	is_veg BOOLEAN,
	rating REAL,
	short_description TEXT,
	long_description TEXT,
	contact TEXT,
	images TEXT,
	capacity INTEGER,
	avg_rating REAL,
	rating_count INTEGER,
	tags TEXT
);
CREATE TABLE vendor_reviews (
	id TEXT PRIMARY KEY,
	vendor_id TEXT,
	author TEXT,
	rating REAL,
	body TEXT,
	created_at TIMESTAMP
);
`

var regional = []string{"Malvani", "gujarati"}

type vendorStore interface {
	VendorsByIDs(ctx context.Context, ids []string) ([]vendor.VendorRecord, error)
	SearchByName(ctx context.Context, name string, limit int) ([]vendor.VendorRecord, error)
	VendorsByCategory(ctx context.Context, category, locality string, limit int) ([]vendor.VendorRecord, error)
	GuideBucket(ctx context.Context, category string, bucket vendor.Bucket, limit int) ([]vendor.VendorRecord, error)
	ReviewsForVendor(ctx context.Context, vendorID string, limit int) ([]vendor.Review, error)
}

func ptr[T any](v T) *T { return &v }

func fixtureVendors() []vendor.VendorRecord {
	return []vendor.VendorRecord{
		{
			ID: "v1", Name: "Royal Caterers", Category: "caterer", City: "Mumbai", Locality: "Bandra",
			PriceMin: ptr(40000.0), PriceMax: ptr(60000.0), IsVeg: ptr(true), Rating: ptr(4.5),
			ShortDescription: "Pure veg thalis", Contact: "royal@example.com",
			Images: []string{"a.jpg", "b.jpg"}, Capacity: ptr(int64(500)), Tags: "gujarati, thali",
		},
		{
			ID: "v2", Name: "Spice Route Caterers", Category: "caterer", City: "Mumbai", Locality: "Andheri",
			PriceMin: ptr(80000.0), PriceMax: ptr(150000.0), IsVeg: ptr(false), Rating: ptr(4.8),
			ShortDescription: "Coastal Malvani seafood",
		},
		{
			ID: "v3", Name: "Budget Bites Caterers", Category: "caterer", City: "Thane",
			PriceMin: ptr(15000.0), PriceMax: ptr(30000.0), IsVeg: ptr(true), Rating: ptr(3.9),
		},
		{
			ID: "v4", Name: "Lens Studio", Category: "photographer", City: "Mumbai", Locality: "Bandra",
			Rating: ptr(4.2),
		},
	}
}

func fixtureReviews() []vendor.Review {
	return []vendor.Review{
		{ID: "r1", VendorID: "v1", Author: "Asha", Rating: ptr(4.0), Body: "Good food",
			CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "r2", VendorID: "v1", Author: "Ravi", Rating: ptr(5.0), Body: "Loved the thali",
			CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
}

func newSQLiteStore(t *testing.T) *DatabaseStore {
	t.Helper()
	database, err := db.New(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(testSchema)
	require.NoError(t, err)

	for _, v := range fixtureVendors() {
		var images any
		if len(v.Images) > 0 {
			b, err := json.Marshal(v.Images)
			require.NoError(t, err)
			images = string(b)
		}
		_, err := database.Exec(`INSERT INTO vendors (`+vendorColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.Name, v.Category, v.City, v.Locality, v.PriceMin, v.PriceMax, v.IsVeg, v.Rating,
			v.ShortDescription, v.LongDescription, v.Contact, images, v.Capacity, v.AvgRating, v.RatingCount, v.Tags)
		require.NoError(t, err)
	}
	for _, r := range fixtureReviews() {
		_, err := database.Exec(`INSERT INTO vendor_reviews (id, vendor_id, author, rating, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, r.ID, r.VendorID, r.Author, r.Rating, r.Body, r.CreatedAt)
		require.NoError(t, err)
	}
	return NewDatabaseStore(database, regional)
}

func newMemoryFixture() *MemoryStore {
	m := NewMemoryStore(regional)
	m.Put(fixtureVendors()...)
	m.AddReviews(fixtureReviews()...)
	return m
}

func stores(t *testing.T) map[string]vendorStore {
	return map[string]vendorStore{
		"sqlite": newSQLiteStore(t),
		"memory": newMemoryFixture(),
	}
}

func vendorIDs(vs []vendor.VendorRecord) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

func TestVendorsByIDs(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.VendorsByIDs(ctx, []string{"v1", "v4", "missing"})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"v1", "v4"}, vendorIDs(got))

			got, err = s.VendorsByIDs(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestSearchByName(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.SearchByName(ctx, "CATERERS", 3)
			require.NoError(t, err)
			assert.Equal(t, []string{"v2", "v1", "v3"}, vendorIDs(got))

			got, err = s.SearchByName(ctx, "caterers", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"v2", "v1"}, vendorIDs(got))

			got, err = s.SearchByName(ctx, "royal", 3)
			require.NoError(t, err)
			require.Len(t, got, 1)
			v := got[0]
			assert.Equal(t, "Royal Caterers", v.Name)
			assert.Equal(t, "Bandra", v.Locality)
			assert.Equal(t, 40000.0, *v.PriceMin)
			assert.Equal(t, 60000.0, *v.PriceMax)
			assert.True(t, *v.IsVeg)
			assert.Equal(t, []string{"a.jpg", "b.jpg"}, v.Images)
			assert.Equal(t, int64(500), *v.Capacity)
			assert.Nil(t, v.AvgRating)

			_, err = s.SearchByName(ctx, "  ", 3)
			assert.Error(t, err)
		})
	}
}

func TestVendorsByCategory(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.VendorsByCategory(ctx, "caterer", "bandra", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"v1"}, vendorIDs(got))

			got, err = s.VendorsByCategory(ctx, "caterer", "", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"v2", "v1", "v3"}, vendorIDs(got))

			got, err = s.VendorsByCategory(ctx, "", "mumbai", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"v2", "v1", "v4"}, vendorIDs(got))
		})
	}
}

func TestGuideBucket(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		bucket vendor.Bucket
		want   []string
	}{
		{vendor.BucketLuxury, []string{"v2", "v1", "v3"}},
		{vendor.BucketVeg, []string{"v1", "v3"}},
		{vendor.BucketRegional, []string{"v2", "v1"}},
		{vendor.BucketBudget, []string{"v3", "v1", "v2"}},
	}
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, tc := range tests {
				got, err := s.GuideBucket(ctx, "caterer", tc.bucket, 5)
				require.NoError(t, err, tc.bucket)
				assert.Equal(t, tc.want, vendorIDs(got), tc.bucket)
			}

			got, err := s.GuideBucket(ctx, "photographer", vendor.BucketLuxury, 5)
			require.NoError(t, err)
			assert.Empty(t, got)

			_, err = s.GuideBucket(ctx, "caterer", vendor.Bucket("cheap"), 5)
			assert.Error(t, err)
		})
	}
}

func TestReviewsForVendor(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.ReviewsForVendor(ctx, "v1", 10)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "r2", got[0].ID)
			assert.Equal(t, "Loved the thali", got[0].Body)
			assert.Equal(t, 5.0, *got[0].Rating)
			assert.False(t, got[0].CreatedAt.IsZero())

			got, err = s.ReviewsForVendor(ctx, "v1", 1)
			require.NoError(t, err)
			assert.Equal(t, "r2", got[0].ID)

			got, err = s.ReviewsForVendor(ctx, "v4", 10)
			require.NoError(t, err)
			assert.Empty(t, got)

			_, err = s.ReviewsForVendor(ctx, "", 10)
			assert.Error(t, err)
		})
	}
}

func TestParseImages(t *testing.T) {
	assert.Nil(t, parseImages(""))
	assert.Equal(t, []string{"a.jpg"}, parseImages(`["a.jpg"]`))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, parseImages("a.jpg, b.jpg"))
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	b, err := json.Marshal(Catalog{Vendors: fixtureVendors(), Reviews: fixtureReviews()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	m, err := LoadCatalogFile(path, regional)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Len())

	got, err := m.ReviewsForVendor(context.Background(), "v1", 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, os.WriteFile(path, []byte(`{"vendors":[{"name":"No ID"}]}`), 0o600))
	_, err = LoadCatalogFile(path, nil)
	assert.Error(t, err)

	_, err = LoadCatalogFile(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestMemoryStorePutReplaces(t *testing.T) {
	m := newMemoryFixture()
	m.Put(vendor.VendorRecord{ID: "v1", Name: "Royal Caterers Renamed"})
	assert.Equal(t, 4, m.Len())

	got, err := m.SearchByName(context.Background(), "renamed", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, vendorIDs(got))
}
