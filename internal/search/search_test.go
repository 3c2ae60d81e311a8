package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pgvector/pgvector-go"
	pb "github.com/qdrant/go-client/qdrant"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"vendor-chat-backend/internal/vendor"
)

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return []float32{0.1, 0.2, 0.3}, f.err
}

type fakePoints struct {
	responses []*pb.SearchResponse
	requests  []*pb.SearchPoints
	err       error
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.requests = append(f.requests, in)
	if f.err != nil {
		return nil, f.err
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func strVal(s string) *pb.Value  { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
func numVal(f float64) *pb.Value { return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}} }

func scored(uuid string, score float32, payload map[string]*pb.Value) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid}},
		Score:   score,
		Payload: payload,
	}
}

func TestQdrantSearchReturnsHitsShape(t *testing.T) {
	points := &fakePoints{responses: []*pb.SearchResponse{{Result: []*pb.ScoredPoint{
		scored("p1", 0.9, map[string]*pb.Value{
			"vendor_id": strVal("v1"),
			"name":      strVal("Royal Caterers"),
			"price_min": numVal(40000),
			"is_veg":    {Kind: &pb.Value_BoolValue{BoolValue: true}},
		}),
		scored("p2", 0.7, map[string]*pb.Value{"name": strVal("Spice Route")}),
	}}}}
	embedder := &fakeEmbedder{}
	q := &Qdrant{points: points, embedder: embedder, collection: "vendors"}

	raw, err := q.Search(context.Background(), vendor.VectorQuery{Text: "veg caterers", TopK: 5})
	require.NoError(t, err)

	require.Len(t, points.requests, 1)
	assert.Equal(t, "vendors", points.requests[0].CollectionName)
	assert.Equal(t, uint64(5), points.requests[0].Limit)
	assert.Nil(t, points.requests[0].Filter)
	assert.Equal(t, []string{"veg caterers"}, embedder.texts)

	candidates := vendor.Normalize(raw)
	require.Len(t, candidates, 2)
	assert.Equal(t, "v1", candidates[0].ID)
	assert.Equal(t, 40000.0, *candidates[0].PriceMin)
	assert.True(t, *candidates[0].IsVeg)
	assert.InDelta(t, 0.9, *candidates[0].Score, 1e-6)
	assert.Equal(t, "p2", candidates[1].ID, "point id is used when the payload has none")
}

func TestQdrantCategoryFilterMissIsEmpty(t *testing.T) {
	points := &fakePoints{responses: []*pb.SearchResponse{
		{},
		{Result: []*pb.ScoredPoint{scored("p1", 0.5, map[string]*pb.Value{"name": strVal("Any")})}},
	}}
	embedder := &fakeEmbedder{}
	q := &Qdrant{points: points, embedder: embedder, collection: "vendors"}

	raw, err := q.Search(context.Background(), vendor.VectorQuery{Text: "in bandra", Category: "caterer"})
	require.NoError(t, err)

	require.Len(t, points.requests, 1, "no unfiltered retry")
	assert.NotNil(t, points.requests[0].Filter)
	assert.Equal(t, uint64(defaultTopK), points.requests[0].Limit)
	assert.Equal(t, []string{"caterer: in bandra"}, embedder.texts)
	assert.Empty(t, vendor.Normalize(raw))
}

func TestQdrantErrors(t *testing.T) {
	q := &Qdrant{points: &fakePoints{err: errors.New("unavailable")}, embedder: &fakeEmbedder{}}
	_, err := q.Search(context.Background(), vendor.VectorQuery{Text: "x"})
	assert.Error(t, err)

	q = &Qdrant{points: &fakePoints{}, embedder: &fakeEmbedder{err: errors.New("no key")}}
	_, err = q.Search(context.Background(), vendor.VectorQuery{Text: "x"})
	assert.Error(t, err)
}

func TestCategoryFilter(t *testing.T) {
	f := categoryFilter("caterer")
	var keywords []string
	for _, c := range f.Should {
		keywords = append(keywords, c.GetField().GetMatch().GetKeyword())
	}
	assert.Equal(t, []string{"caterer", "Caterer", "caterers", "Caterers"}, keywords)
}

func TestFromValue(t *testing.T) {
	v := &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: map[string]*pb.Value{
		"tags":     {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: []*pb.Value{strVal("veg")}}}},
		"capacity": {Kind: &pb.Value_IntegerValue{IntegerValue: 300}},
		"none":     {Kind: &pb.Value_NullValue{}},
	}}}}
	assert.Equal(t, map[string]any{
		"tags":     []any{"veg"},
		"capacity": 300.0,
		"none":     nil,
	}, fromValue(v))

	assert.Equal(t, "12", pointID(&pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 12}}))
	assert.Equal(t, "", pointID(nil))
}

func TestSimilarityQuery(t *testing.T) {
	vec := pgvector.NewVector([]float32{1, 2})

	query, args := similarityQuery(vec, vendor.VectorQuery{TopK: 4})
	assert.NotContains(t, query, "$3")
	assert.Len(t, args, 2)
	assert.Equal(t, 4, args[1])

	query, args = similarityQuery(vec, vendor.VectorQuery{TopK: 4, Category: "Caterer"})
	assert.Contains(t, query, "metadata->>'category'")
	require.Len(t, args, 3)
	assert.Equal(t, "%caterer%", args[2])
}

func TestMatchKeepsOnlyObjectMetadata(t *testing.T) {
	m := match("v1", 0.8, []byte(`{"name":"Royal"}`))
	assert.Equal(t, map[string]any{"name": "Royal"}, m["metadata"])

	m = match("v2", 0.5, []byte(`"not an object"`))
	assert.NotContains(t, m, "metadata")

	got := vendor.Normalize(map[string]any{"matches": []any{match("v1", 0.8, []byte(`{"name":"Royal"}`))}})
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].ID)
	assert.Equal(t, "Royal", got[0].Name)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Search(context.Background(), vendor.VectorQuery{Text: "x"})
	assert.ErrorIs(t, err, ErrBackendDisabled)
	assert.ErrorIs(t, err, vendor.ErrNoVectorIndex)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	e := NewOpenAIEmbedder(openai.NewClientWithConfig(cfg), "text-embedding-3-small")

	got, err := e.Embed(context.Background(), "caterers")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, got)
}
