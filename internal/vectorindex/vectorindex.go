// Package vectorindex defines the storage capability used for retrieval and
// the in-memory flat strategy built on chromem-go.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"document-chat/internal/models"
)

// ErrZeroQuery is returned for a query vector with no direction; cosine
// similarity is undefined for it.
var ErrZeroQuery = errors.New("query vector has zero magnitude")

// Record is one chunk vector to persist.
type Record struct {
	SessionID int64
	Ordinal   int
	Text      string
	Vector    []float32
}

// Query asks for the K nearest vectors. SessionID 0 searches every session.
type Query struct {
	Vector    []float32
	K         int
	SessionID int64
}

// Result is a ranked neighbor; higher Score means more similar.
type Result struct {
	ID    int64
	Text  string
	Score float64
}

// Row is a stored vector as read back for in-process indexing.
type Row struct {
	ID     int64
	Text   string
	Vector []float32
}

// Store is implemented by every retrieval backend.
type Store interface {
	InsertVector(ctx context.Context, rec Record) (int64, error)
	QueryNearest(ctx context.Context, q Query) ([]Result, error)
	DeleteBySession(ctx context.Context, sessionID int64) error
}

// Writer persists and removes vectors on behalf of a read-side strategy.
type Writer interface {
	InsertVector(ctx context.Context, rec Record) (int64, error)
	DeleteBySession(ctx context.Context, sessionID int64) error
}

// RowSource lists the stored vectors of a session (0 for all sessions).
type RowSource interface {
	LoadVectors(ctx context.Context, sessionID int64) ([]Row, error)
}

// CheckDimensions verifies that every row shares the query's dimension.
func CheckDimensions(rows []Row, query []float32) error {
	for _, row := range rows {
		if len(row.Vector) != len(query) {
			return &models.DimensionMismatchError{Want: len(row.Vector), Got: len(query)}
		}
	}
	return nil
}

// CheckDimension verifies a single vector against an expected dimension.
// A non-positive want disables the check.
func CheckDimension(want int, vec []float32) error {
	if want > 0 && len(vec) != want {
		return &models.DimensionMismatchError{Want: want, Got: len(vec)}
	}
	return nil
}

// IsZero reports whether every component of vec is zero.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func errReadOnly(op string) error {
	return fmt.Errorf("flat index: %s not supported without a writer", op)
}
