package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"document-chat/internal/db"
	"document-chat/internal/llmservice"
	"document-chat/internal/models"
	"document-chat/internal/vectorindex"
)

// letterEmbedder maps text to letter counts plus a constant bias component.
type letterEmbedder struct {
	fail  error
	calls []string
}

func (e *letterEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.calls = append(e.calls, text)
	if e.fail != nil {
		return nil, models.NewEmbeddingError(text, e.fail)
	}
	vec := make([]float32, 27)
	vec[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}

type memStore struct {
	records   []vectorindex.Record
	deleted   []int64
	failAfter int
	queryErr  error
}

func (m *memStore) InsertVector(_ context.Context, rec vectorindex.Record) (int64, error) {
	if m.failAfter > 0 && len(m.records) >= m.failAfter {
		return 0, errors.New("insert failed")
	}
	m.records = append(m.records, rec)
	return int64(len(m.records)), nil
}

func (m *memStore) QueryNearest(ctx context.Context, q vectorindex.Query) ([]vectorindex.Result, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var rows []vectorindex.Row
	for i, rec := range m.records {
		if q.SessionID != 0 && rec.SessionID != q.SessionID {
			continue
		}
		rows = append(rows, vectorindex.Row{ID: int64(i + 1), Text: rec.Text, Vector: rec.Vector})
	}
	return vectorindex.Search(ctx, rows, q.Vector, q.K)
}

func (m *memStore) DeleteBySession(_ context.Context, sessionID int64) error {
	m.deleted = append(m.deleted, sessionID)
	kept := m.records[:0]
	for _, rec := range m.records {
		if rec.SessionID != sessionID {
			kept = append(kept, rec)
		}
	}
	m.records = kept
	return nil
}

type memRepo struct {
	chats        map[int64]*db.Chat
	messages     []db.Message
	images       map[int64]*db.Image
	interactions map[int64]*db.Interaction
	store        *memStore
	nextID       int64
}

func newMemRepo(store *memStore) *memRepo {
	return &memRepo{
		chats:        map[int64]*db.Chat{},
		images:       map[int64]*db.Image{},
		interactions: map[int64]*db.Interaction{},
		store:        store,
	}
}

func (r *memRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) CreateChat(_ context.Context, title, filename, path string) (*db.Chat, error) {
	chat := &db.Chat{ID: r.id(), Title: title, DocumentFilename: filename, DocumentPath: path, CreatedAt: time.Now()}
	r.chats[chat.ID] = chat
	return chat, nil
}

func (r *memRepo) GetChat(_ context.Context, id int64) (*db.Chat, error) {
	chat, ok := r.chats[id]
	if !ok {
		return nil, models.ErrChatNotFound
	}
	return chat, nil
}

func (r *memRepo) ListChats(context.Context) ([]db.Chat, error) {
	var chats []db.Chat
	for _, c := range r.chats {
		chats = append(chats, *c)
	}
	return chats, nil
}

func (r *memRepo) DeleteChat(_ context.Context, id int64) error {
	if _, ok := r.chats[id]; !ok {
		return models.ErrChatNotFound
	}
	delete(r.chats, id)
	return nil
}

func (r *memRepo) ListChunks(_ context.Context, chatID int64) ([]db.ChatContext, error) {
	var chunks []db.ChatContext
	for _, rec := range r.store.records {
		if rec.SessionID == chatID {
			chunks = append(chunks, db.ChatContext{ChatID: chatID, Content: rec.Text, ChunkIndex: rec.Ordinal})
		}
	}
	return chunks, nil
}

func (r *memRepo) AddMessage(_ context.Context, chatID int64, role, content, contextUsed string) (*db.Message, error) {
	msg := db.Message{ID: r.id(), ChatID: chatID, Role: role, Content: content, ContextUsed: contextUsed}
	r.messages = append(r.messages, msg)
	return &msg, nil
}

func (r *memRepo) ListMessages(_ context.Context, chatID int64) ([]db.Message, error) {
	var msgs []db.Message
	for _, m := range r.messages {
		if m.ChatID == chatID {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (r *memRepo) CreateImage(_ context.Context, filename string) (*db.Image, error) {
	img := &db.Image{ID: r.id(), Filename: filename}
	r.images[img.ID] = img
	return img, nil
}

func (r *memRepo) ListImages(context.Context) ([]db.Image, error) {
	var images []db.Image
	for id := int64(1); id <= r.nextID; id++ {
		if img, ok := r.images[id]; ok {
			images = append(images, *img)
		}
	}
	return images, nil
}

func (r *memRepo) CreateInteraction(_ context.Context, imageID int64, prompt string) (*db.Interaction, error) {
	it := &db.Interaction{ID: r.id(), ImageID: imageID, UserPrompt: prompt}
	r.interactions[it.ID] = it
	return it, nil
}

func (r *memRepo) UpdateImageCaption(_ context.Context, imageID int64, caption string, vec []float32) error {
	img := r.images[imageID]
	img.Caption = caption
	img.Embedding = db.EncodeVector(vec)
	return nil
}

func (r *memRepo) UpdateInteractionResponse(_ context.Context, interactionID int64, response string) error {
	r.interactions[interactionID].ModelResponse = response
	return nil
}

type scriptedChat struct {
	answer     string
	tokens     []string
	extracted  string
	extractErr error
	system     string
	user       string
	images     []llmservice.Image
}

func (c *scriptedChat) Complete(_ context.Context, system, user string, images ...llmservice.Image) (string, error) {
	c.system, c.user, c.images = system, user, images
	return c.answer, nil
}

func (c *scriptedChat) Stream(_ context.Context, system, user string, images []llmservice.Image, onToken func(string) error) (string, error) {
	c.system, c.user, c.images = system, user, images
	for _, tok := range c.tokens {
		if err := onToken(tok); err != nil {
			return "", err
		}
	}
	return strings.Join(c.tokens, ""), nil
}

func (c *scriptedChat) ExtractDocument(_ context.Context, path string, _ time.Duration) (string, error) {
	if c.extractErr != nil {
		return "", c.extractErr
	}
	return c.extracted, nil
}
