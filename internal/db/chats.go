package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"document-chat/internal/models"

	"github.com/uptrace/bun"
)

func CreateChat(ctx context.Context, db bun.IDB, title, filename, path string) (*Chat, error) {
	now := time.Now()
	chat := &Chat{
		Title:            title,
		DocumentFilename: filename,
		DocumentPath:     path,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := db.NewInsert().Model(chat).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

func GetChat(ctx context.Context, db bun.IDB, id int64) (*Chat, error) {
	chat := new(Chat)
	err := db.NewSelect().Model(chat).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat %d: %w", id, models.ErrChatNotFound)
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChats returns chats, most recently active first.
func ListChats(ctx context.Context, db bun.IDB) ([]Chat, error) {
	var chats []Chat
	err := db.NewSelect().Model(&chats).Order("c.updated_at DESC").Scan(ctx)
	return chats, err
}

// DeleteChat removes a chat. Chunks and messages go with it through the
// cascading foreign keys.
func DeleteChat(ctx context.Context, db bun.IDB, id int64) error {
	res, err := db.NewDelete().Model((*Chat)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chat %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("chat %d: %w", id, models.ErrChatNotFound)
	}
	return nil
}

// ListChunks returns the chat's chunks in ordinal order.
func ListChunks(ctx context.Context, db bun.IDB, chatID int64) ([]ChatContext, error) {
	var chunks []ChatContext
	err := db.NewSelect().
		Model(&chunks).
		Where("cc.chat_id = ?", chatID).
		Order("cc.chunk_index ASC").
		Scan(ctx)
	return chunks, err
}

// AddMessage stores a message and marks the chat as updated.
func AddMessage(ctx context.Context, db bun.IDB, chatID int64, role, content, contextUsed string) (*Message, error) {
	msg := &Message{
		ChatID:      chatID,
		Role:        role,
		Content:     content,
		ContextUsed: contextUsed,
		CreatedAt:   time.Now(),
	}
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(msg).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewUpdate().
			Model((*Chat)(nil)).
			Set("updated_at = ?", msg.CreatedAt).
			Where("id = ?", chatID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	return msg, nil
}

func ListMessages(ctx context.Context, db bun.IDB, chatID int64) ([]Message, error) {
	var msgs []Message
	err := db.NewSelect().
		Model(&msgs).
		Where("m.chat_id = ?", chatID).
		Order("m.created_at ASC", "m.id ASC").
		Scan(ctx)
	return msgs, err
}
