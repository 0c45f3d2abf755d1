package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"document-chat/internal/config"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Chat is a conversation bound to one uploaded document.
type Chat struct {
	bun.BaseModel    `bun:"table:chats,alias:c"`
	ID               int64     `bun:"id,pk,autoincrement"`
	Title            string    `bun:"title,notnull"`
	DocumentFilename string    `bun:"document_filename,notnull"`
	DocumentPath     string    `bun:"document_path"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ChatContext is one chunk of a chat's document. The embedding column is
// resized to vector(dim) by InitDB.
type ChatContext struct {
	bun.BaseModel `bun:"table:chat_contexts,alias:cc"`
	ID            int64            `bun:"id,pk,autoincrement"`
	ChatID        int64            `bun:"chat_id,notnull"`
	Content       string           `bun:"content,notnull"`
	Embedding     *pgvector.Vector `bun:"embedding,type:vector"`
	ChunkIndex    int              `bun:"chunk_index,notnull"`
	CreatedAt     time.Time        `bun:"created_at,notnull,default:current_timestamp"`
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`
	ID            int64     `bun:"id,pk,autoincrement"`
	ChatID        int64     `bun:"chat_id,notnull"`
	Role          string    `bun:"role,notnull"`
	Content       string    `bun:"content,notnull"`
	ContextUsed   string    `bun:"context_used"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Image is a captioned image. Embedding holds little-endian float32 values.
type Image struct {
	bun.BaseModel `bun:"table:images,alias:i"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Filename      string    `bun:"filename,notnull"`
	Caption       string    `bun:"caption,nullzero"`
	Embedding     []byte    `bun:"embedding,type:bytea"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type Interaction struct {
	bun.BaseModel `bun:"table:interactions,alias:it"`
	ID            int64     `bun:"id,pk,autoincrement"`
	ImageID       int64     `bun:"image_id,notnull"`
	UserPrompt    string    `bun:"user_prompt"`
	ModelResponse string    `bun:"model_response,nullzero"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN()
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", dsn)
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// InitDB enables pgvector and creates the schema. dimension fixes the width
// of the chunk embedding column.
func InitDB(ctx context.Context, db bun.IDB, dimension int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}

	tables := []struct {
		model      interface{}
		foreignKey string
	}{
		{model: (*Chat)(nil)},
		{model: (*ChatContext)(nil), foreignKey: `("chat_id") REFERENCES "chats" ("id") ON DELETE CASCADE`},
		{model: (*Message)(nil), foreignKey: `("chat_id") REFERENCES "chats" ("id") ON DELETE CASCADE`},
		{model: (*Image)(nil)},
		{model: (*Interaction)(nil), foreignKey: `("image_id") REFERENCES "images" ("id") ON DELETE CASCADE`},
	}
	for _, table := range tables {
		q := db.NewCreateTable().Model(table.model).IfNotExists()
		if table.foreignKey != "" {
			q = q.ForeignKey(table.foreignKey)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if dimension > 0 {
		if _, err := db.ExecContext(ctx, "ALTER TABLE chat_contexts ALTER COLUMN embedding TYPE vector(?)", dimension); err != nil {
			return fmt.Errorf("failed to set embedding dimension: %w", err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*ChatContext)(nil)).
		Index("chat_contexts_chat_id_idx").
		Column("chat_id", "chunk_index").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create chunk index: %w", err)
	}
	return nil
}

// ResetDB drops every table created by InitDB.
func ResetDB(ctx context.Context, db bun.IDB) error {
	models := []interface{}{(*Interaction)(nil), (*Image)(nil), (*Message)(nil), (*ChatContext)(nil), (*Chat)(nil)}
	for _, model := range models {
		if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CreateIVFFlatIndex adds an approximate cosine index over chunk embeddings.
// It reports whether the index was created by this call.
func CreateIVFFlatIndex(ctx context.Context, db bun.IDB, name string, lists int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = ?)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up index: %w", err)
	}
	if exists {
		return false, nil
	}
	_, err = db.ExecContext(ctx,
		"CREATE INDEX ? ON chat_contexts USING ivfflat (embedding vector_cosine_ops) WITH (lists = ?)",
		bun.Ident(name), lists)
	if err != nil {
		return false, fmt.Errorf("failed to create ivfflat index: %w", err)
	}
	return true, nil
}
