package search

import (
	"context"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"vendor-chat-backend/internal/vendor"
)

// pointSearcher is the slice of pb.PointsClient the backend uses.
type pointSearcher interface {
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// Qdrant searches a Qdrant collection over gRPC. Its raw response is
// {"hits":[{"id","score","payload"}]}.
type Qdrant struct {
	conn       *grpc.ClientConn
	points     pointSearcher
	embedder   Embedder
	collection string
}

// NewQdrant creates a client for the collection at the given gRPC address.
func NewQdrant(addr, collection string, embedder Embedder) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("search: dial qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		embedder:   embedder,
		collection: collection,
	}, nil
}

func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Search embeds the query and runs a k-NN search. A category narrows the
// search through the payload "category" keyword; if nothing matches the
// narrowed search it is retried without the filter.
func (q *Qdrant) Search(ctx context.Context, vq vendor.VectorQuery) (any, error) {
	if vq.TopK <= 0 {
		vq.TopK = defaultTopK
	}
	embedding, err := q.embedder.Embed(ctx, queryText(vq))
	if err != nil {
		return nil, err
	}
	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         embedding,
		Limit:          uint64(vq.TopK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if vq.Category != "" {
		req.Filter = categoryFilter(vq.Category)
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: qdrant search: %w", err)
	}

	hits := make([]any, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		payload := make(map[string]any, len(p.GetPayload()))
		for k, v := range p.GetPayload() {
			payload[k] = fromValue(v)
		}
		hits = append(hits, map[string]any{
			"id":      pointID(p.GetId()),
			"score":   float64(p.GetScore()),
			"payload": payload,
		})
	}
	return map[string]any{"hits": hits}, nil
}

// categoryFilter matches the canonical category or its plural, in either
// lower or title case.
func categoryFilter(category string) *pb.Filter {
	seen := map[string]bool{}
	var should []*pb.Condition
	for _, v := range []string{category, category + "s"} {
		for _, c := range []string{strings.ToLower(v), strings.ToUpper(v[:1]) + strings.ToLower(v[1:])} {
			if !seen[c] {
				seen[c] = true
				should = append(should, fieldMatch("category", c))
			}
		}
	}
	return &pb.Filter{Should: should}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}

// fromValue converts a payload value to the plain JSON-style tree.
func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return float64(k.IntegerValue)
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for key, inner := range k.StructValue.GetFields() {
			out[key] = fromValue(inner)
		}
		return out
	case *pb.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, inner := range k.ListValue.GetValues() {
			out = append(out, fromValue(inner))
		}
		return out
	default:
		return nil
	}
}
