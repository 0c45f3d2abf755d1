package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-chat/internal/config"
	"document-chat/internal/models"
	"document-chat/internal/vectorindex"
)

func newTestService(t *testing.T) (*Service, *memRepo, *memStore, *letterEmbedder, *scriptedChat) {
	t.Helper()
	store := &memStore{}
	captions := &memStore{}
	repo := newMemRepo(store)
	embedder := &letterEmbedder{}
	chat := &scriptedChat{answer: "It is about cats."}
	cfg := config.RAGConfig{ChunkSize: 40, OverlapSentences: 2, TopK: 3, CaptionTopK: 2}
	return New(repo, store, captions, embedder, chat, cfg), repo, store, embedder, chat
}

func TestAssembleContext(t *testing.T) {
	got := AssembleContext([]vectorindex.Result{
		{Text: "Cats sleep a lot.", Score: 0.8734},
		{Text: "Dogs bark.", Score: 0.5},
	})
	want := "[Relevance: 0.87]\nCats sleep a lot.\n\n---\n\n[Relevance: 0.50]\nDogs bark."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if AssembleContext(nil) != "" {
		t.Fatal("expected empty string for no results")
	}
	if got := AssembleContext([]vectorindex.Result{{Text: "only", Score: 1}}); got != "[Relevance: 1.00]\nonly" {
		t.Fatalf("unexpected single entry %q", got)
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	cr := Retrieve(context.Background(), &letterEmbedder{}, &memStore{}, "anything", 3, 1)
	if cr.Err != nil {
		t.Fatalf("expected no error, got %v", cr.Err)
	}
	if cr.Text != "" || len(cr.Results) != 0 {
		t.Fatalf("expected empty context, got %+v", cr)
	}
}

func TestRetrieve_ReportsErrors(t *testing.T) {
	cr := Retrieve(context.Background(), &letterEmbedder{fail: errors.New("down")}, &memStore{}, "q", 3, 1)
	var embErr *models.EmbeddingError
	if !errors.As(cr.Err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %v", cr.Err)
	}

	boom := errors.New("query failed")
	cr = Retrieve(context.Background(), &letterEmbedder{}, &memStore{queryErr: boom}, "q", 3, 1)
	if !errors.Is(cr.Err, boom) {
		t.Fatalf("expected query error, got %v", cr.Err)
	}
}

func TestCreateChat_DefaultTitle(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	long := strings.Repeat("x", 60) + ".pdf"

	chat, err := svc.CreateChat(context.Background(), long, "/data/"+long, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if chat.Title != "Chat: "+strings.Repeat("x", 50) {
		t.Fatalf("unexpected title %q", chat.Title)
	}

	chat, _ = svc.CreateChat(context.Background(), "a.txt", "", "My notes")
	if chat.Title != "My notes" {
		t.Fatalf("expected explicit title, got %q", chat.Title)
	}
}

func TestIngest_OrdinalsAndReplay(t *testing.T) {
	svc, _, store, _, _ := newTestService(t)
	ctx := context.Background()
	text := "Cats purr softly. Dogs bark loudly. Birds sing at dawn. Fish swim in rivers. Cows graze in fields."

	n, err := svc.Ingest(ctx, 7, text)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n < 2 || n != len(store.records) {
		t.Fatalf("expected several stored chunks, got n=%d stored=%d", n, len(store.records))
	}
	for i, rec := range store.records {
		if rec.Ordinal != i || rec.SessionID != 7 {
			t.Fatalf("record %d has ordinal %d session %d", i, rec.Ordinal, rec.SessionID)
		}
	}

	replayed, err := svc.DocumentText(ctx, 7)
	if err != nil {
		t.Fatalf("DocumentText: %v", err)
	}
	if replayed != text {
		t.Fatalf("expected %q, got %q", text, replayed)
	}
}

func TestIngest_EmbeddingFailureStoresNothing(t *testing.T) {
	svc, _, store, embedder, _ := newTestService(t)
	embedder.fail = errors.New("connection refused")

	_, err := svc.Ingest(context.Background(), 1, "One. Two. Three.")
	var embErr *models.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(store.records))
	}
}

func TestIngest_InsertFailureRemovesPartialChunks(t *testing.T) {
	svc, _, store, _, _ := newTestService(t)
	store.failAfter = 1

	text := "Cats purr softly. Dogs bark loudly. Birds sing at dawn. Fish swim in rivers."
	if _, err := svc.Ingest(context.Background(), 3, text); err == nil {
		t.Fatal("expected insert error")
	}
	if len(store.deleted) != 1 || store.deleted[0] != 3 {
		t.Fatalf("expected session 3 cleanup, got %v", store.deleted)
	}
	if len(store.records) != 0 {
		t.Fatalf("expected partial chunks removed, got %d", len(store.records))
	}
}

func TestIngest_EmptyText(t *testing.T) {
	svc, _, store, _, _ := newTestService(t)
	n, err := svc.Ingest(context.Background(), 1, "   ")
	if err != nil || n != 0 || len(store.records) != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
}

func TestProcessDocument_TextFile(t *testing.T) {
	svc, _, store, _, _ := newTestService(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("Cats purr softly. Dogs bark loudly."), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := svc.ProcessDocument(context.Background(), 2, path)
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if n != len(store.records) || n == 0 {
		t.Fatalf("expected stored chunks, got n=%d", n)
	}
}

func TestProcessDocument_Image(t *testing.T) {
	svc, _, store, _, chat := newTestService(t)
	chat.extracted = "A bar chart. Sales rose in March."

	n, err := svc.ProcessDocument(context.Background(), 4, "/uploads/chart.png")
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if n == 0 || !strings.Contains(store.records[0].Text, "bar chart") {
		t.Fatalf("expected extracted text to be indexed, got %+v", store.records)
	}
}

func TestProcessDocument_ExtractionFailures(t *testing.T) {
	svc, _, _, _, chat := newTestService(t)
	chat.extractErr = &models.ExtractionError{Filename: "scan.jpg", Reason: "model returned empty content"}

	if _, err := svc.ProcessDocument(context.Background(), 1, "scan.jpg"); !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("expected ErrExtraction for image, got %v", err)
	}
	if _, err := svc.ProcessDocument(context.Background(), 1, "slides.key"); !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("expected ErrExtraction for unsupported file, got %v", err)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProcessDocument(context.Background(), 1, empty); !errors.Is(err, models.ErrExtraction) {
		t.Fatalf("expected ErrExtraction for empty file, got %v", err)
	}
}

func TestAsk_UsesContextAndStoresTurns(t *testing.T) {
	svc, repo, _, _, chat := newTestService(t)
	ctx := context.Background()

	c, _ := svc.CreateChat(ctx, "pets.txt", "", "")
	if _, err := svc.Ingest(ctx, c.ID, "Cats purr softly. Dogs bark loudly. Birds sing at dawn."); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	answer, err := svc.Ask(ctx, c.ID, "Do cats purr?", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "It is about cats." {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if answer.Context.Err != nil || len(answer.Context.Results) == 0 {
		t.Fatalf("expected context results, got %+v", answer.Context)
	}
	if !strings.Contains(chat.system, "[Relevance: ") || !strings.Contains(chat.system, "Cats purr softly.") {
		t.Fatalf("system prompt missing context: %q", chat.system)
	}
	if chat.user != "Do cats purr?" {
		t.Fatalf("unexpected user prompt %q", chat.user)
	}

	msgs, _ := repo.ListMessages(ctx, c.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected roles %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].ContextUsed != answer.Context.Text {
		t.Fatal("expected assistant message to record the context used")
	}
}

func TestAsk_Streams(t *testing.T) {
	svc, _, _, _, chat := newTestService(t)
	ctx := context.Background()
	chat.tokens = []string{"Yes", ", they", " do."}
	c, _ := svc.CreateChat(ctx, "pets.txt", "", "")

	var streamed strings.Builder
	answer, err := svc.Ask(ctx, c.ID, "Do cats purr?", func(tok string) error {
		streamed.WriteString(tok)
		return nil
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "Yes, they do." || streamed.String() != answer.Text {
		t.Fatalf("unexpected streamed answer %q / %q", streamed.String(), answer.Text)
	}
	if !strings.Contains(chat.system, models.NoContextNotice) {
		t.Fatal("expected no-context notice for an empty index")
	}
}

func TestAsk_ContextFailureDegradesOrFails(t *testing.T) {
	svc, _, _, embedder, _ := newTestService(t)
	ctx := context.Background()
	c, _ := svc.CreateChat(ctx, "pets.txt", "", "")
	embedder.fail = errors.New("down")

	answer, err := svc.Ask(ctx, c.ID, "Do cats purr?", nil)
	if err != nil {
		t.Fatalf("expected degraded answer, got %v", err)
	}
	if answer.Context.Err == nil {
		t.Fatal("expected context error to be reported")
	}

	svc.cfg.StrictContext = true
	if _, err := svc.Ask(ctx, c.ID, "Do cats purr?", nil); err == nil {
		t.Fatal("expected strict mode to fail")
	}
}

func TestAsk_UnknownChat(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	if _, err := svc.Ask(context.Background(), 404, "hi", nil); !errors.Is(err, models.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestDescribe_StoresCaption(t *testing.T) {
	svc, repo, _, embedder, chat := newTestService(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plot.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	chat.answer = "PLAN: 1. Look. REASON: A line plot. EVALUATE: Upward trend."

	caption, err := svc.Describe(ctx, path, "What does this show?", nil)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	img := repo.images[caption.ImageID]
	if img.Filename != "plot.png" || img.Caption != chat.answer {
		t.Fatalf("unexpected image row %+v", img)
	}
	if len(img.Embedding) != 27*4 {
		t.Fatalf("expected encoded embedding, got %d bytes", len(img.Embedding))
	}
	if last := embedder.calls[len(embedder.calls)-1]; last != chat.answer+"\nWhat does this show?" {
		t.Fatalf("unexpected embedded caption text %q", last)
	}
	if len(chat.images) != 1 || chat.images[0].MIMEType != "image/png" {
		t.Fatalf("expected image attached, got %+v", chat.images)
	}
	for _, it := range repo.interactions {
		if it.ModelResponse != chat.answer {
			t.Fatalf("interaction response not stored: %+v", it)
		}
	}

	images, err := svc.Images(ctx)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 1 || images[0].ID != caption.ImageID || images[0].Caption != chat.answer {
		t.Fatalf("unexpected images %+v", images)
	}
}

func TestDeleteChat(t *testing.T) {
	svc, _, store, _, _ := newTestService(t)
	ctx := context.Background()
	c, _ := svc.CreateChat(ctx, "a.txt", "", "")
	if _, err := svc.Ingest(ctx, c.ID, "One thing. Another thing."); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteChat(ctx, c.ID); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("expected vectors removed, got %d", len(store.records))
	}
	if err := svc.DeleteChat(ctx, c.ID); !errors.Is(err, models.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}
