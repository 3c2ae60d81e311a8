package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"vendor-chat-backend/internal/db"
	"vendor-chat-backend/internal/vendor"
)

// PGVector searches the vendor_embeddings table by cosine distance. Its raw
// response is {"matches":[{"id","score","metadata"}]}.
type PGVector struct {
	db       *db.DB
	embedder Embedder
}

func NewPGVector(database *db.DB, embedder Embedder) *PGVector {
	return &PGVector{db: database, embedder: embedder}
}

func (p *PGVector) Search(ctx context.Context, vq vendor.VectorQuery) (any, error) {
	if vq.TopK <= 0 {
		vq.TopK = defaultTopK
	}
	embedding, err := p.embedder.Embed(ctx, queryText(vq))
	if err != nil {
		return nil, err
	}
	query, args := similarityQuery(pgvector.NewVector(embedding), vq)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: pgvector query: %w", err)
	}
	defer rows.Close()

	matches := make([]any, 0, vq.TopK)
	for rows.Next() {
		var (
			id    string
			score float64
			meta  []byte
		)
		if err := rows.Scan(&id, &score, &meta); err != nil {
			return nil, fmt.Errorf("search: pgvector scan: %w", err)
		}
		matches = append(matches, match(id, score, meta))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: pgvector rows: %w", err)
	}
	return map[string]any{"matches": matches}, nil
}

func similarityQuery(vec pgvector.Vector, vq vendor.VectorQuery) (string, []any) {
	args := []any{vec, vq.TopK}
	var where string
	if vq.Category != "" {
		where = "WHERE LOWER(metadata->>'category') LIKE $3"
		args = append(args, "%"+strings.ToLower(vq.Category)+"%")
	}
	query := `
		SELECT vendor_id, 1 - (embedding <=> $1) AS score, metadata
		FROM vendor_embeddings
		` + where + `
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	return query, args
}

// match builds one result item. Metadata that is not a JSON object is kept
// out of the response rather than failing the search.
func match(id string, score float64, meta []byte) map[string]any {
	m := map[string]any{"id": id, "score": score}
	if len(meta) > 0 {
		var md map[string]any
		if err := json.Unmarshal(meta, &md); err == nil {
			m["metadata"] = md
		}
	}
	return m
}
