package db

import (
	"context"

	"github.com/uptrace/bun"
)

// Repository binds the package functions to one database handle.
type Repository struct {
	DB bun.IDB
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) CreateChat(ctx context.Context, title, filename, path string) (*Chat, error) {
	return CreateChat(ctx, r.DB, title, filename, path)
}

func (r *Repository) GetChat(ctx context.Context, id int64) (*Chat, error) {
	return GetChat(ctx, r.DB, id)
}

func (r *Repository) ListChats(ctx context.Context) ([]Chat, error) {
	return ListChats(ctx, r.DB)
}

func (r *Repository) DeleteChat(ctx context.Context, id int64) error {
	return DeleteChat(ctx, r.DB, id)
}

func (r *Repository) ListChunks(ctx context.Context, chatID int64) ([]ChatContext, error) {
	return ListChunks(ctx, r.DB, chatID)
}

func (r *Repository) AddMessage(ctx context.Context, chatID int64, role, content, contextUsed string) (*Message, error) {
	return AddMessage(ctx, r.DB, chatID, role, content, contextUsed)
}

func (r *Repository) ListMessages(ctx context.Context, chatID int64) ([]Message, error) {
	return ListMessages(ctx, r.DB, chatID)
}

func (r *Repository) CreateImage(ctx context.Context, filename string) (*Image, error) {
	return CreateImage(ctx, r.DB, filename)
}

func (r *Repository) ListImages(ctx context.Context) ([]Image, error) {
	return ListImages(ctx, r.DB)
}

func (r *Repository) CreateInteraction(ctx context.Context, imageID int64, prompt string) (*Interaction, error) {
	return CreateInteraction(ctx, r.DB, imageID, prompt)
}

func (r *Repository) UpdateImageCaption(ctx context.Context, imageID int64, caption string, vec []float32) error {
	return UpdateImageCaption(ctx, r.DB, imageID, caption, vec)
}

func (r *Repository) UpdateInteractionResponse(ctx context.Context, interactionID int64, response string) error {
	return UpdateInteractionResponse(ctx, r.DB, interactionID, response)
}
