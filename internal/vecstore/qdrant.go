package vecstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Fixed for the lifetime of the collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant collection with cosine
// distance. Qdrant evaluates filters before ranking, which gives the
// pre-filter semantics Query requires.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore connects to Qdrant, ensures the target collection exists
// (creating it with cosine distance if necessary), and returns a ready store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	s := &QdrantStore{client: client, cfg: cfg}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return &StorageError{Op: "open", Err: fmt.Errorf("check collection: %w", err)}
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return &StorageError{Op: "open", Err: fmt.Errorf("create collection %q: %w", s.cfg.Collection, err)}
	}
	return nil
}

// Upsert writes or overwrites entries by id. Qdrant applies points
// individually, so a failed batch never corrupts points already written.
func (s *QdrantStore) Upsert(ctx context.Context, entries []Entry) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return &StorageError{Op: "upsert", Err: fmt.Errorf("entry with empty id")}
		}

		payload := map[string]any{
			"id":       e.ID,
			"document": e.Document,
		}
		for k, v := range e.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// Query runs a filtered cosine similarity search and returns the top k.
// Qdrant orders only by score, so results are re-sorted here to pin the
// id-ascending tie-break among equal scores.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, filter Filter, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("vecstore: k must be > 0, got %d", k)
	}

	qf, err := toQdrantFilter(filter)
	if err != nil {
		return nil, err
	}

	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qf,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		entry := Entry{Metadata: make(map[string]any)}
		for key, val := range p.Payload {
			switch key {
			case "id":
				entry.ID = val.GetStringValue()
			case "document":
				entry.Document = val.GetStringValue()
			default:
				entry.Metadata[key] = valueToScalar(val)
			}
		}
		results = append(results, Result{Entry: entry, Score: p.Score})
	}
	sortResults(results)
	return results, nil
}

// Count returns the exact number of points satisfying the filter.
func (s *QdrantStore) Count(ctx context.Context, filter Filter) (uint64, error) {
	qf, err := toQdrantFilter(filter)
	if err != nil {
		return 0, err
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointUUID derives a deterministic UUID-formatted point id from an entry id,
// since Qdrant point ids must be UUIDs or unsigned integers while entry ids
// are arbitrary strings. The original id travels in the payload.
func pointUUID(id string) string {
	h := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}

// toQdrantFilter translates the filter AST into a Qdrant filter. Our AST is a
// conjunction of leaf predicates, so every leaf lands in Must.
func toQdrantFilter(f Filter) (*qdrant.Filter, error) {
	if f == nil {
		return nil, nil
	}
	conds, err := toConditions(f)
	if err != nil {
		return nil, err
	}
	return &qdrant.Filter{Must: conds}, nil
}

// toConditions flattens a filter tree into Qdrant conditions.
func toConditions(f Filter) ([]*qdrant.Condition, error) {
	switch leaf := f.(type) {
	case andFilter:
		var conds []*qdrant.Condition
		for _, c := range leaf.children {
			sub, err := toConditions(c)
			if err != nil {
				return nil, err
			}
			conds = append(conds, sub...)
		}
		return conds, nil

	case eqFilter:
		cond, err := eqCondition(leaf.field, leaf.value)
		if err != nil {
			return nil, err
		}
		return []*qdrant.Condition{cond}, nil

	case inFilter:
		cond, err := inCondition(leaf.field, leaf.values)
		if err != nil {
			return nil, err
		}
		return []*qdrant.Condition{cond}, nil

	case gtFilter:
		return []*qdrant.Condition{qdrant.NewRange(leaf.field, &qdrant.Range{Gt: &leaf.n})}, nil

	case ltFilter:
		return []*qdrant.Condition{qdrant.NewRange(leaf.field, &qdrant.Range{Lt: &leaf.n})}, nil
	}
	return nil, &FilterSyntaxError{Reason: fmt.Sprintf("unsupported filter node %T", f)}
}

// eqCondition builds the Qdrant match condition for one equality predicate.
func eqCondition(field string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatch(field, v), nil
	case bool:
		return qdrant.NewMatchBool(field, v), nil
	}
	if n, ok := asNumber(value); ok {
		if n == math.Trunc(n) {
			return qdrant.NewMatchInt(field, int64(n)), nil
		}
		return qdrant.NewRange(field, &qdrant.Range{Gte: &n, Lte: &n}), nil
	}
	return nil, &FilterSyntaxError{Reason: fmt.Sprintf("field %q: unsupported eq value %T", field, value)}
}

// inCondition builds the Qdrant match condition for one set-membership
// predicate. All members must share a type: strings or integers.
func inCondition(field string, values []any) (*qdrant.Condition, error) {
	if len(values) == 0 {
		return nil, &FilterSyntaxError{Reason: fmt.Sprintf("field %q: empty in-set", field)}
	}

	if _, ok := values[0].(string); ok {
		keywords := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, &FilterSyntaxError{Reason: fmt.Sprintf("field %q: mixed types in in-set", field)}
			}
			keywords = append(keywords, s)
		}
		return qdrant.NewMatchKeywords(field, keywords...), nil
	}

	ints := make([]int64, 0, len(values))
	for _, v := range values {
		n, ok := asNumber(v)
		if !ok || n != math.Trunc(n) {
			return nil, &FilterSyntaxError{
				Reason: fmt.Sprintf("field %q: in-set members must be strings or integers", field),
			}
		}
		ints = append(ints, int64(n))
	}
	return qdrant.NewMatchInts(field, ints...), nil
}

// valueToScalar converts a Qdrant payload value back to a Go scalar.
func valueToScalar(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return int(kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	}
	return nil
}
