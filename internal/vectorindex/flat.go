package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"document-chat/internal/helper"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

var errNoEmbeddingFunc = errors.New("flat index only accepts precomputed embeddings")

// FlatIndex answers queries from a chromem-go collection rebuilt from Source
// on every call. The collection is local to the call and never shared.
type FlatIndex struct {
	Source RowSource
	Writer Writer
}

func NewFlatIndex(source RowSource, writer Writer) *FlatIndex {
	return &FlatIndex{Source: source, Writer: writer}
}

func (f *FlatIndex) InsertVector(ctx context.Context, rec Record) (int64, error) {
	if f.Writer == nil {
		return 0, errReadOnly("insert")
	}
	return f.Writer.InsertVector(ctx, rec)
}

func (f *FlatIndex) DeleteBySession(ctx context.Context, sessionID int64) error {
	if f.Writer == nil {
		return errReadOnly("delete")
	}
	return f.Writer.DeleteBySession(ctx, sessionID)
}

func (f *FlatIndex) QueryNearest(ctx context.Context, q Query) ([]Result, error) {
	rows, err := f.Source.LoadVectors(ctx, q.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return Search(ctx, rows, q.Vector, q.K)
}

// Search ranks rows by cosine similarity to query and returns at most k results,
// best first. Rows without a vector are ignored; no rows yields an empty result.
func Search(ctx context.Context, rows []Row, query []float32, k int) ([]Result, error) {
	indexed := make([]Row, 0, len(rows))
	for _, row := range rows {
		if len(row.Vector) == 0 {
			continue
		}
		indexed = append(indexed, row)
	}
	if len(indexed) == 0 || k <= 0 {
		return []Result{}, nil
	}
	if err := CheckDimensions(indexed, query); err != nil {
		return nil, err
	}
	if IsZero(query) {
		return nil, ErrZeroQuery
	}

	name, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	db := chromem.NewDB()
	collection, err := db.CreateCollection(name, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(indexed))
	for i, row := range indexed {
		// chromem normalizes on insert, which is undefined for a zero vector
		if IsZero(row.Vector) {
			log.Debug().Int64("id", row.ID).Msg("Skipping zero vector")
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   row.Text,
			Embedding: append([]float32(nil), row.Vector...),
		})
	}
	if len(docs) == 0 {
		return []Result{}, nil
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	hits, err := collection.QueryEmbedding(ctx, append([]float32(nil), query...), min(k, collection.Count()), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q: %w", hit.ID, err)
		}
		results = append(results, Result{
			ID:    indexed[i].ID,
			Text:  indexed[i].Text,
			Score: float64(hit.Similarity),
		})
	}
	return results, nil
}
