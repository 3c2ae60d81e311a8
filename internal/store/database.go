package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"vendor-chat-backend/internal/db"
	"vendor-chat-backend/internal/vendor"
)

const vendorColumns = `id, name, category, city, locality, price_min, price_max, is_veg, rating,
	short_description, long_description, contact, images, capacity, avg_rating, rating_count, tags`

// DatabaseStore reads vendors and reviews from PostgreSQL or SQLite.
type DatabaseStore struct {
	db            *db.DB
	regionalTerms []string
}

// NewDatabaseStore creates a new database store. regionalTerms drive the
// regional guide bucket.
func NewDatabaseStore(database *db.DB, regionalTerms []string) *DatabaseStore {
	return &DatabaseStore{db: database, regionalTerms: lowerAll(regionalTerms)}
}

// VendorsByIDs fetches the rows whose id is in ids. Row order is unspecified.
func (ds *DatabaseStore) VendorsByIDs(ctx context.Context, ids []string) ([]vendor.VendorRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE id IN (` + db.Placeholders(len(ids)) + `)`
	rows, err := ds.queryVendors(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get vendors by id: %w", err)
	}
	return rows, nil
}

// SearchByName does a case-insensitive partial match on the vendor name.
func (ds *DatabaseStore) SearchByName(ctx context.Context, name string, limit int) ([]vendor.VendorRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	query := `
		SELECT ` + vendorColumns + `
		FROM vendors
		WHERE LOWER(name) LIKE ?
		ORDER BY COALESCE(rating, 0) DESC, name
		LIMIT ?
	`
	rows, err := ds.queryVendors(ctx, query, likePattern(name), limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search vendors by name: %w", err)
	}
	return rows, nil
}

// VendorsByCategory browses a category, optionally narrowed to a locality
// or city, best rated first.
func (ds *DatabaseStore) VendorsByCategory(ctx context.Context, category, locality string, limit int) ([]vendor.VendorRecord, error) {
	var where []string
	var args []any
	if category != "" {
		where = append(where, "LOWER(category) LIKE ?")
		args = append(args, likePattern(category))
	}
	if locality != "" {
		where = append(where, "(LOWER(COALESCE(locality, '')) LIKE ? OR LOWER(COALESCE(city, '')) LIKE ?)")
		args = append(args, likePattern(locality), likePattern(locality))
	}
	query := `SELECT ` + vendorColumns + ` FROM vendors`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY COALESCE(rating, 0) DESC, name LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := ds.queryVendors(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to browse vendors: %w", err)
	}
	return rows, nil
}

// GuideBucket runs one of the guide-mode queries for a category.
func (ds *DatabaseStore) GuideBucket(ctx context.Context, category string, bucket vendor.Bucket, limit int) ([]vendor.VendorRecord, error) {
	where := []string{"LOWER(category) LIKE ?"}
	args := []any{likePattern(category)}
	var order string

	switch bucket {
	case vendor.BucketLuxury:
		where = append(where, "price_min IS NOT NULL")
		order = "price_min DESC"
	case vendor.BucketVeg:
		where = append(where, "is_veg = ?")
		args = append(args, true)
		order = "COALESCE(rating, 0) DESC"
	case vendor.BucketRegional:
		if len(ds.regionalTerms) == 0 {
			return nil, nil
		}
		var terms []string
		for _, term := range ds.regionalTerms {
			terms = append(terms, "LOWER(COALESCE(tags, '')) LIKE ?", "LOWER(COALESCE(short_description, '')) LIKE ?")
			args = append(args, likePattern(term), likePattern(term))
		}
		where = append(where, "("+strings.Join(terms, " OR ")+")")
		order = "COALESCE(rating, 0) DESC"
	case vendor.BucketBudget:
		where = append(where, "price_max IS NOT NULL")
		order = "price_max ASC"
	default:
		return nil, fmt.Errorf("unknown guide bucket %q", bucket)
	}

	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + order + `, name LIMIT ?`
	args = append(args, limitOrDefault(limit))

	rows, err := ds.queryVendors(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s bucket: %w", bucket, err)
	}
	return rows, nil
}

// ReviewsForVendor returns the newest reviews first.
func (ds *DatabaseStore) ReviewsForVendor(ctx context.Context, vendorID string, limit int) ([]vendor.Review, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("vendor_id is required")
	}
	query := ds.db.Rebind(`
		SELECT id, vendor_id, author, rating, body, created_at
		FROM vendor_reviews
		WHERE vendor_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`)
	rows, err := ds.db.QueryContext(ctx, query, vendorID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	var out []vendor.Review
	for rows.Next() {
		var r vendor.Review
		var author, body sql.NullString
		var rating sql.NullFloat64
		var created sql.NullTime
		if err := rows.Scan(&r.ID, &r.VendorID, &author, &rating, &body, &created); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		r.Author = author.String
		r.Rating = nullFloat(rating)
		r.Body = body.String
		if created.Valid {
			r.CreatedAt = created.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	return out, nil
}

func (ds *DatabaseStore) queryVendors(ctx context.Context, query string, args ...any) ([]vendor.VendorRecord, error) {
	rows, err := ds.db.QueryContext(ctx, ds.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vendor.VendorRecord
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVendor(rows *sql.Rows) (vendor.VendorRecord, error) {
	var v vendor.VendorRecord
	var name, category, city, locality sql.NullString
	var shortDesc, longDesc, contact, images, tags sql.NullString
	var priceMin, priceMax, rating, avgRating sql.NullFloat64
	var isVeg sql.NullBool
	var capacity, ratingCount sql.NullInt64
	err := rows.Scan(
		&v.ID, &name, &category, &city, &locality,
		&priceMin, &priceMax, &isVeg, &rating,
		&shortDesc, &longDesc, &contact, &images,
		&capacity, &avgRating, &ratingCount, &tags,
	)
	if err != nil {
		return vendor.VendorRecord{}, fmt.Errorf("failed to scan vendor: %w", err)
	}
	v.Name = name.String
	v.Category = category.String
	v.City = city.String
	v.Locality = locality.String
	v.ShortDescription = shortDesc.String
	v.LongDescription = longDesc.String
	v.Contact = contact.String
	v.Tags = tags.String
	v.PriceMin = nullFloat(priceMin)
	v.PriceMax = nullFloat(priceMax)
	v.Rating = nullFloat(rating)
	v.AvgRating = nullFloat(avgRating)
	if isVeg.Valid {
		b := isVeg.Bool
		v.IsVeg = &b
	}
	if capacity.Valid {
		n := capacity.Int64
		v.Capacity = &n
	}
	if ratingCount.Valid {
		n := ratingCount.Int64
		v.RatingCount = &n
	}
	v.Images = parseImages(images.String)
	return v, nil
}

// parseImages accepts a JSON array or a comma-separated list.
func parseImages(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
