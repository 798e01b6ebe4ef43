/**
 * Qdrant segment embedding cache
 *
 * Keeps one point per (model, segment text) so repeated segments skip the
 * embedding oracle. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// segmentNamespace scopes deterministic point ids
var segmentNamespace = uuid.MustParse("6f1c2b8e-4d0a-4b7e-9a53-1f2e3d4c5b6a")

// EmbeddingCache stores segment embeddings in a Qdrant collection
type EmbeddingCache struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
	dimensions       uint64
}

// NewEmbeddingCache connects to Qdrant and ensures the collection exists
// with the given vector size.
func NewEmbeddingCache(address, collectionName string, dimensions int) (*EmbeddingCache, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}
	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dimensions)
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	ec := &EmbeddingCache{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
		dimensions:       uint64(dimensions),
	}

	if err := ec.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return ec, nil
}

func (q *EmbeddingCache) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     q.dimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// SegmentPointID is the deterministic point id of a segment under a model
func SegmentPointID(model, text string) string {
	return uuid.NewMD5(segmentNamespace, []byte(model+"\x00"+text)).String()
}

// Lookup returns the cached vectors for texts, keyed by input index. Texts
// without a cached vector are absent from the map.
func (q *EmbeddingCache) Lookup(ctx context.Context, model string, texts []string) (map[int][]float32, error) {
	if len(texts) == 0 {
		return map[int][]float32{}, nil
	}

	indexByID := make(map[string][]int, len(texts))
	ids := make([]*qdrant.PointId, 0, len(texts))
	for i, t := range texts {
		id := SegmentPointID(model, t)
		if _, seen := indexByID[id]; !seen {
			ids = append(ids, &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}})
		}
		indexByID[id] = append(indexByID[id], i)
	}

	results, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collectionName,
		Ids:            ids,
		WithVectors: &qdrant.WithVectorsSelector{
			SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cached embeddings: %w", err)
	}

	found := make(map[int][]float32, len(results.Result))
	for _, point := range results.Result {
		if point.Id == nil || point.Vectors == nil {
			continue
		}
		vec := point.Vectors.GetVector()
		if vec == nil || uint64(len(vec.Data)) != q.dimensions {
			continue
		}
		for _, i := range indexByID[point.Id.GetUuid()] {
			found[i] = vec.Data
		}
	}
	return found, nil
}

// Store upserts one point per text
func (q *EmbeddingCache) Store(ctx context.Context, model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts))
	}
	if len(texts) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(texts))
	for i, t := range texts {
		if uint64(len(vectors[i])) != q.dimensions {
			return fmt.Errorf("invalid vector dimensions: expected %d, got %d", q.dimensions, len(vectors[i]))
		}
		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: SegmentPointID(model, t)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: vectors[i]},
				},
			},
			Payload: map[string]*qdrant.Value{
				"text":  {Kind: &qdrant.Value_StringValue{StringValue: t}},
				"model": {Kind: &qdrant.Value_StringValue{StringValue: model}},
			},
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert embeddings: %w", err)
	}
	return nil
}

// Close closes the gRPC connection
func (q *EmbeddingCache) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
