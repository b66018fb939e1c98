// Package vectorstore defines the duck-typed vector index interface and a
// Qdrant-backed implementation of it.
package vectorstore

import "context"

// Metadata is the payload stored alongside a vector.
type Metadata struct {
	SampleCount int
}

// Match is one result of a top-k query.
type Match struct {
	Name  string
	Score float32 // cosine similarity, [-1,1]
}

// Entry is one row of a list_all response.
type Entry struct {
	Name     string
	Metadata Metadata
}

// Store is the small interface the voiceprint registry and matcher depend
// on; production code is backed by Qdrant, tests substitute an in-memory
// fake.
type Store interface {
	Upsert(ctx context.Context, name string, vector []float32, metadata Metadata) error
	Get(ctx context.Context, name string) ([]float32, Metadata, bool, error)
	Delete(ctx context.Context, name string) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	ListAll(ctx context.Context) ([]Entry, error)
}
