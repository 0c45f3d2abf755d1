package rag

import (
	"context"
	"fmt"
	"strings"

	"document-chat/internal/embedding"
	"document-chat/internal/models"
	"document-chat/internal/vectorindex"
)

// ContextResult carries assembled context or the reason it could not be
// built. Callers decide whether Err is fatal.
type ContextResult struct {
	Text    string
	Results []vectorindex.Result
	Err     error
}

// AssembleContext renders ranked results as relevance-tagged passages.
func AssembleContext(results []vectorindex.Result) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf(models.RelevanceFormat, r.Score, r.Text))
	}
	return strings.Join(parts, models.ContextSeparator)
}

// Retrieve embeds query and assembles the k nearest passages of a session.
// An index with nothing to return yields empty text and no error.
func Retrieve(ctx context.Context, embedder embedding.Embedder, store vectorindex.Store, query string, k int, sessionID int64) ContextResult {
	vec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return ContextResult{Err: err}
	}
	results, err := store.QueryNearest(ctx, vectorindex.Query{Vector: vec, K: k, SessionID: sessionID})
	if err != nil {
		return ContextResult{Err: fmt.Errorf("failed to query context: %w", err)}
	}
	return ContextResult{Text: AssembleContext(results), Results: results}
}
