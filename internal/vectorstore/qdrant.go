package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"speakerid/internal/apperr"
)

const nameKey = "name"
const sampleCountKey = "sample_count"

// pointNamespace is used to derive a deterministic point ID from a
// voiceprint name, so upserting the same name twice replaces the same
// Qdrant point instead of creating a duplicate.
var pointNamespace = uuid.MustParse("6d7a6a9e-6e4a-4e0b-9f8e-9a6b2f6a9c01")

// QdrantStore implements Store against a Qdrant collection using cosine
// distance. Network/RPC errors are surfaced as apperr.ProviderError with no
// retry, per the adapter's failure contract.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore dials addr (host:port) and binds to the named collection.
// The collection itself is assumed to already exist with the correct
// vector size and cosine distance; this adapter does not provision it.
func NewQdrantStore(addr, collection string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant port %q: %w", portStr, err)
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s: %w", addr, err)
	}
	return &QdrantStore{client: client, collection: collection}, nil
}

func pointID(name string) *qdrant.PointId {
	id := uuid.NewSHA1(pointNamespace, []byte(name)).String()
	return qdrant.NewID(id)
}

func (s *QdrantStore) Upsert(ctx context.Context, name string, vector []float32, metadata Metadata) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      pointID(name),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					nameKey:        name,
					sampleCountKey: metadata.SampleCount,
				}),
			},
		},
	})
	if err != nil {
		return apperr.ProviderError(err, "qdrant upsert failed for %q", name)
	}
	return nil
}

func (s *QdrantStore) Get(ctx context.Context, name string) ([]float32, Metadata, bool, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{pointID(name)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, Metadata{}, false, apperr.ProviderError(err, "qdrant get failed for %q", name)
	}
	if len(points) == 0 {
		return nil, Metadata{}, false, nil
	}
	return vectorFromPoint(points[0]), metadataFromPayload(points[0].GetPayload()), true, nil
}

func (s *QdrantStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorIDS([]*qdrant.PointId{pointID(name)}),
	})
	if err != nil {
		return apperr.ProviderError(err, "qdrant delete failed for %q", name)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.ProviderError(err, "qdrant query failed")
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		payload := r.GetPayload()
		name := ""
		if v, ok := payload[nameKey]; ok {
			name = v.GetStringValue()
		}
		matches = append(matches, Match{Name: name, Score: r.GetScore()})
	}
	return matches, nil
}

// scrollPageSize is the explicit page size requested from Scroll. Qdrant
// defaults to 10 when Limit is left unset, which made the pagination below
// stop after the first page as soon as more than one speaker was enrolled.
const scrollPageSize = uint32(100)

func (s *QdrantStore) ListAll(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	var offset *qdrant.PointId
	pageSize := scrollPageSize

	for {
		resp, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          &pageSize,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		if err != nil {
			return nil, apperr.ProviderError(err, "qdrant scroll failed")
		}
		if len(resp) == 0 {
			break
		}
		for _, p := range resp {
			payload := p.GetPayload()
			name := ""
			if v, ok := payload[nameKey]; ok {
				name = v.GetStringValue()
			}
			entries = append(entries, Entry{Name: name, Metadata: metadataFromPayload(payload)})
		}
		if len(resp) < int(pageSize) {
			break
		}
		offset = resp[len(resp)-1].GetId()
	}

	return entries, nil
}

func vectorFromPoint(p *qdrant.RetrievedPoint) []float32 {
	vectors := p.GetVectors()
	if vectors == nil {
		return nil
	}
	if dense := vectors.GetVector(); dense != nil {
		return dense.GetData()
	}
	return nil
}

func metadataFromPayload(payload map[string]*qdrant.Value) Metadata {
	meta := Metadata{}
	if v, ok := payload[sampleCountKey]; ok {
		meta.SampleCount = int(v.GetIntegerValue())
	}
	return meta
}
