package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
)

const (
	payloadSource = "source"
	payloadChunk  = "chunk"
	payloadText   = "text"
)

var _ vectorStore = &QdrantStore{}

// QdrantStore keeps each passage as a point whose payload carries the source
// file name, the chunk index and the text.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

func NewQdrantStore(host string, port int, collection string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, err
	}
	return &QdrantStore{client: client, collection: collection}, nil
}

// EnsureCollection creates the cosine collection and a keyword index on the
// source field. It reports whether the collection was already there.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		return true, nil
	}

	log.Info().Str("collection", s.collection).Int("size", vectorSize).Msg("🆕 Creating knowledge collection")
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return false, fmt.Errorf("create collection: %w", err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      payloadSource,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Could not index source field, filtered searches will scan")
	}
	return false, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, passages []Passage) error {
	points := make([]*qdrant.PointStruct, 0, len(passages))
	for _, p := range passages {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadSource: p.Source,
				payloadChunk:  p.Chunk,
				payloadText:   p.Text,
			}),
		})
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upsert %d passages: %w", len(points), err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, q Query) ([]Passage, error) {
	limit := uint64(q.Limit)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.Source != "" {
		req.Filter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadSource, q.Source)}}
	}
	if q.MinScore > 0 {
		threshold := q.MinScore
		req.ScoreThreshold = &threshold
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.collection, err)
	}

	out := make([]Passage, 0, len(points))
	for _, pt := range points {
		out = append(out, Passage{
			ID:     pt.GetId().GetUuid(),
			Source: pt.GetPayload()[payloadSource].GetStringValue(),
			Chunk:  int(pt.GetPayload()[payloadChunk].GetIntegerValue()),
			Text:   pt.GetPayload()[payloadText].GetStringValue(),
			Score:  pt.GetScore(),
		})
	}
	return out, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
