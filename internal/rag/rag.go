package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"document-chat/internal/config"
	"document-chat/internal/db"
	"document-chat/internal/embedding"
	"document-chat/internal/llmservice"
	"document-chat/internal/models"
	"document-chat/internal/parser"
	"document-chat/internal/vectorindex"

	"github.com/rs/zerolog/log"
)

// Repository is the relational state the service reads and writes.
type Repository interface {
	CreateChat(ctx context.Context, title, filename, path string) (*db.Chat, error)
	GetChat(ctx context.Context, id int64) (*db.Chat, error)
	ListChats(ctx context.Context) ([]db.Chat, error)
	DeleteChat(ctx context.Context, id int64) error
	ListChunks(ctx context.Context, chatID int64) ([]db.ChatContext, error)
	AddMessage(ctx context.Context, chatID int64, role, content, contextUsed string) (*db.Message, error)
	ListMessages(ctx context.Context, chatID int64) ([]db.Message, error)
	CreateImage(ctx context.Context, filename string) (*db.Image, error)
	ListImages(ctx context.Context) ([]db.Image, error)
	CreateInteraction(ctx context.Context, imageID int64, prompt string) (*db.Interaction, error)
	UpdateImageCaption(ctx context.Context, imageID int64, caption string, vec []float32) error
	UpdateInteractionResponse(ctx context.Context, interactionID int64, response string) error
}

// ChatModel answers prompts, optionally streaming, and reads images.
type ChatModel interface {
	Complete(ctx context.Context, system, user string, images ...llmservice.Image) (string, error)
	Stream(ctx context.Context, system, user string, images []llmservice.Image, onToken func(string) error) (string, error)
	ExtractDocument(ctx context.Context, path string, timeout time.Duration) (string, error)
}

type Service struct {
	repo      Repository
	store     vectorindex.Store
	captions  vectorindex.Store
	embedder  embedding.Embedder
	chat      ChatModel
	extractor parser.Extractor
	cfg       config.RAGConfig
}

// New wires the service. captions ranks captioned images for Describe.
func New(repo Repository, store, captions vectorindex.Store, embedder embedding.Embedder, chat ChatModel, cfg config.RAGConfig) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		captions:  captions,
		embedder:  embedder,
		chat:      chat,
		extractor: parser.FileExtractor{},
		cfg:       cfg,
	}
}

// Answer is the outcome of Ask.
type Answer struct {
	Text    string
	Context ContextResult
}

// Caption is the outcome of Describe.
type Caption struct {
	ImageID int64
	Text    string
	Context ContextResult
}

func DefaultTitle(filename string) string {
	r := []rune(filename)
	if len(r) > 50 {
		r = r[:50]
	}
	return "Chat: " + string(r)
}

func (s *Service) CreateChat(ctx context.Context, filename, path, title string) (*db.Chat, error) {
	if title == "" {
		title = DefaultTitle(filename)
	}
	return s.repo.CreateChat(ctx, title, filename, path)
}

// ProcessDocument extracts the text of the document at path and indexes it
// under chatID. Images go through the vision model.
func (s *Service) ProcessDocument(ctx context.Context, chatID int64, path string) (int, error) {
	filename := filepath.Base(path)
	var (
		text string
		err  error
	)
	if parser.IsImage(path) {
		text, err = s.chat.ExtractDocument(ctx, path, s.cfg.ExtractionTimeout)
	} else {
		text, err = s.extractor.ExtractText(path)
		if err != nil {
			err = &models.ExtractionError{Filename: filename, Reason: err.Error()}
		}
	}
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, &models.ExtractionError{Filename: filename, Reason: "no text content"}
	}

	n, err := s.Ingest(ctx, chatID, text)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("chat_id", chatID).Str("file", filename).Int("chunks", n).Msg("Document processed")
	return n, nil
}

// Ingest chunks, embeds and stores text. Nothing is stored unless every
// chunk was embedded; a failed insert removes the chunks stored so far.
func (s *Service) Ingest(ctx context.Context, chatID int64, text string) (int, error) {
	chunks := parser.GetChunks(text, s.cfg.ChunkSize, s.cfg.OverlapSentences)
	embedded, err := embedding.GenerateEmbedding(ctx, s.embedder, chatID, chunks)
	if err != nil {
		return 0, err
	}

	for _, ce := range embedded {
		_, err := s.store.InsertVector(ctx, vectorindex.Record{
			SessionID: ce.SessionID,
			Ordinal:   ce.ChunkIndex,
			Text:      ce.Content,
			Vector:    ce.Embedding,
		})
		if err != nil {
			if delErr := s.store.DeleteBySession(ctx, chatID); delErr != nil {
				log.Error().Err(delErr).Int64("chat_id", chatID).Msg("Failed to remove partially stored chunks")
			}
			return 0, err
		}
	}
	return len(embedded), nil
}

// Retrieve returns the k passages of chatID closest to query.
func (s *Service) Retrieve(ctx context.Context, chatID int64, query string, k int) ContextResult {
	return Retrieve(ctx, s.embedder, s.store, query, k, chatID)
}

// BuildContext retrieves the configured number of passages for query.
func (s *Service) BuildContext(ctx context.Context, chatID int64, query string) ContextResult {
	return s.Retrieve(ctx, chatID, query, s.cfg.TopK)
}

// Ask answers question from the chat's document. Both turns are stored.
// When onToken is set the answer is streamed through it.
func (s *Service) Ask(ctx context.Context, chatID int64, question string, onToken func(string) error) (*Answer, error) {
	if _, err := s.repo.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	if _, err := s.repo.AddMessage(ctx, chatID, models.RoleUser, question, ""); err != nil {
		return nil, err
	}

	cr := s.BuildContext(ctx, chatID, question)
	if cr.Err != nil {
		if s.cfg.StrictContext {
			return nil, cr.Err
		}
		log.Warn().Err(cr.Err).Int64("chat_id", chatID).Msg("Answering without document context")
	}

	contextText := cr.Text
	if contextText == "" {
		contextText = models.NoContextNotice
	}
	system := fmt.Sprintf(models.ChatSystemPromptTemplate, contextText)

	answer, err := s.generate(ctx, system, question, nil, onToken)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	if _, err := s.repo.AddMessage(ctx, chatID, models.RoleAssistant, answer, cr.Text); err != nil {
		return nil, err
	}
	return &Answer{Text: answer, Context: cr}, nil
}

// Describe captions a single image, using earlier captions as context, and
// stores the caption with its embedding for later retrieval.
func (s *Service) Describe(ctx context.Context, imagePath, prompt string, onToken func(string) error) (*Caption, error) {
	img, err := llmservice.LoadImage(imagePath)
	if err != nil {
		return nil, err
	}
	image, err := s.repo.CreateImage(ctx, filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	interaction, err := s.repo.CreateInteraction(ctx, image.ID, prompt)
	if err != nil {
		return nil, err
	}

	cr := Retrieve(ctx, s.embedder, s.captions, prompt, s.cfg.CaptionTopK, 0)
	if cr.Err != nil {
		log.Warn().Err(cr.Err).Msg("Captioning without context")
	}

	system := fmt.Sprintf(models.CaptionSystemPromptTemplate, cr.Text)
	answer, err := s.generate(ctx, system, prompt, []llmservice.Image{img}, onToken)
	if err != nil {
		return nil, fmt.Errorf("failed to caption image: %w", err)
	}
	if err := s.repo.UpdateInteractionResponse(ctx, interaction.ID, answer); err != nil {
		return nil, err
	}

	vec, embedErr := s.embedder.EmbedQuery(ctx, answer+"\n"+prompt)
	if embedErr != nil {
		vec = nil
	}
	if err := s.repo.UpdateImageCaption(ctx, image.ID, answer, vec); err != nil {
		return nil, err
	}
	caption := &Caption{ImageID: image.ID, Text: answer, Context: cr}
	if embedErr != nil {
		return caption, embedErr
	}
	return caption, nil
}

func (s *Service) generate(ctx context.Context, system, user string, images []llmservice.Image, onToken func(string) error) (string, error) {
	if onToken != nil {
		return s.chat.Stream(ctx, system, user, images, onToken)
	}
	return s.chat.Complete(ctx, system, user, images...)
}

// DocumentText replays a chat's chunks in order with the overlap removed.
func (s *Service) DocumentText(ctx context.Context, chatID int64) (string, error) {
	chunks, err := s.repo.ListChunks(ctx, chatID)
	if err != nil {
		return "", err
	}
	contents := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contents = append(contents, c.Content)
	}
	return strings.Join(parser.ReconstructSentences(contents, s.cfg.OverlapSentences), " "), nil
}

func (s *Service) Chats(ctx context.Context) ([]db.Chat, error) {
	return s.repo.ListChats(ctx)
}

// Images lists captioned images from Describe.
func (s *Service) Images(ctx context.Context) ([]db.Image, error) {
	return s.repo.ListImages(ctx)
}

func (s *Service) History(ctx context.Context, chatID int64) ([]db.Message, error) {
	if _, err := s.repo.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

// DeleteChat removes the chat's vectors and then the chat itself.
func (s *Service) DeleteChat(ctx context.Context, chatID int64) error {
	if err := s.store.DeleteBySession(ctx, chatID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	err := s.repo.DeleteChat(ctx, chatID)
	if errors.Is(err, models.ErrChatNotFound) {
		log.Warn().Int64("chat_id", chatID).Msg("Chat not found")
	}
	return err
}
