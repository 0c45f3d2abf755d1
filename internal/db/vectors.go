package db

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"document-chat/internal/config"
	"document-chat/internal/vectorindex"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

// PGVectorStore ranks chunks inside Postgres with the pgvector cosine operator.
type PGVectorStore struct {
	db        bun.IDB
	dimension int
}

func NewPGVectorStore(db bun.IDB, dimension int) *PGVectorStore {
	return &PGVectorStore{db: db, dimension: dimension}
}

// NewVectorStore returns the retrieval strategy named by backend. Both
// strategies persist chunks in chat_contexts.
func NewVectorStore(backend string, db bun.IDB, dimension int) (vectorindex.Store, error) {
	pg := NewPGVectorStore(db, dimension)
	switch backend {
	case config.BackendPGVector, "":
		return pg, nil
	case config.BackendFlat:
		return vectorindex.NewFlatIndex(ChunkRows{DB: db}, pg), nil
	default:
		return nil, fmt.Errorf("unknown rag backend %q", backend)
	}
}

func (s *PGVectorStore) InsertVector(ctx context.Context, rec vectorindex.Record) (int64, error) {
	row := &ChatContext{
		ChatID:     rec.SessionID,
		Content:    rec.Text,
		ChunkIndex: rec.Ordinal,
		CreatedAt:  time.Now(),
	}
	if rec.Vector != nil {
		if err := vectorindex.CheckDimension(s.dimension, rec.Vector); err != nil {
			return 0, err
		}
		vec := pgvector.NewVector(rec.Vector)
		row.Embedding = &vec
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to insert chunk %d: %w", rec.Ordinal, err)
	}
	return row.ID, nil
}

type nearestRow struct {
	ID       int64   `bun:"id"`
	Content  string  `bun:"content"`
	Distance float64 `bun:"distance"`
}

func (s *PGVectorStore) QueryNearest(ctx context.Context, q vectorindex.Query) ([]vectorindex.Result, error) {
	if q.K <= 0 {
		return []vectorindex.Result{}, nil
	}
	if err := vectorindex.CheckDimension(s.dimension, q.Vector); err != nil {
		return nil, err
	}
	if vectorindex.IsZero(q.Vector) {
		return nil, vectorindex.ErrZeroQuery
	}

	var rows []nearestRow
	query := s.db.NewSelect().
		Model((*ChatContext)(nil)).
		Column("id", "content").
		ColumnExpr("cc.embedding <=> ?::vector AS distance", pgvector.NewVector(q.Vector)).
		Where("cc.embedding IS NOT NULL")
	if q.SessionID != 0 {
		query = query.Where("cc.chat_id = ?", q.SessionID)
	}
	err := query.OrderExpr("distance ASC").Limit(q.K).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest chunks: %w", err)
	}

	results := make([]vectorindex.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, vectorindex.Result{ID: row.ID, Text: row.Content, Score: 1 - row.Distance})
	}
	return results, nil
}

func (s *PGVectorStore) DeleteBySession(ctx context.Context, sessionID int64) error {
	_, err := s.db.NewDelete().Model((*ChatContext)(nil)).Where("chat_id = ?", sessionID).Exec(ctx)
	return err
}

// ChunkRows reads chunk vectors for in-process ranking.
type ChunkRows struct {
	DB bun.IDB
}

func (c ChunkRows) LoadVectors(ctx context.Context, sessionID int64) ([]vectorindex.Row, error) {
	var chunks []ChatContext
	query := c.DB.NewSelect().
		Model(&chunks).
		Column("id", "content", "embedding").
		Where("cc.embedding IS NOT NULL")
	if sessionID != 0 {
		query = query.Where("cc.chat_id = ?", sessionID)
	}
	if err := query.Order("cc.chunk_index ASC").Scan(ctx); err != nil {
		return nil, err
	}

	rows := make([]vectorindex.Row, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Embedding == nil {
			continue
		}
		rows = append(rows, vectorindex.Row{ID: chunk.ID, Text: chunk.Content, Vector: chunk.Embedding.Slice()})
	}
	return rows, nil
}

// CaptionRows reads captioned images. Images are not scoped to a chat, so
// the session argument is ignored.
type CaptionRows struct {
	DB bun.IDB
}

func (c CaptionRows) LoadVectors(ctx context.Context, _ int64) ([]vectorindex.Row, error) {
	var images []Image
	err := c.DB.NewSelect().
		Model(&images).
		Column("id", "caption", "embedding").
		Where("i.embedding IS NOT NULL").
		Order("i.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]vectorindex.Row, 0, len(images))
	for _, img := range images {
		vec, err := DecodeVector(img.Embedding)
		if err != nil {
			log.Warn().Err(err).Int64("image_id", img.ID).Msg("Skipping unreadable caption embedding")
			continue
		}
		if len(vec) == 0 {
			continue
		}
		rows = append(rows, vectorindex.Row{ID: img.ID, Text: img.Caption, Vector: vec})
	}
	return rows, nil
}

// EncodeVector packs vec as little-endian float32 values. A nil vector
// encodes to nil so the column stays NULL.
func EncodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}
