package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-chat/internal/db"
	"document-chat/internal/helper"
	"document-chat/internal/llmservice"
	"document-chat/internal/models"
	"document-chat/internal/parser"
)

func parseChatID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chat id %q", arg)
	}
	return id, nil
}

func initCMD(cfgPath *string) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database schema and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("error creating data directories: %w", err)
			}
			bunDB, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer bunDB.Close()

			ctx := cmd.Context()
			if reset {
				log.Warn().Msg("Dropping existing tables")
				if err := db.ResetDB(ctx, bunDB); err != nil {
					return fmt.Errorf("error resetting database: %w", err)
				}
			}
			if err := db.InitDB(ctx, bunDB, cfg.EmbedLLM.Dimension); err != nil {
				return fmt.Errorf("error initializing database: %w", err)
			}
			log.Info().Int("dimension", cfg.EmbedLLM.Dimension).Msg("Database initialized")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop all tables first")
	return cmd
}

func ingestCMD(cfgPath *string) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Start a chat from a document",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			dir := filepath.Join(a.cfg.Storage.DataDir, "documents")
			if parser.IsImage(args[0]) {
				dir = a.cfg.Storage.ImagesDir()
			}
			stored, err := helper.StoreFile(args[0], dir)
			if err != nil {
				return fmt.Errorf("error storing file: %w", err)
			}

			chat, err := a.svc.CreateChat(ctx, filepath.Base(args[0]), stored, title)
			if err != nil {
				return err
			}
			n, err := a.svc.ProcessDocument(ctx, chat.ID, stored)
			if err != nil {
				if delErr := a.svc.DeleteChat(ctx, chat.ID); delErr != nil {
					log.Error().Err(delErr).Int64("chat_id", chat.ID).Msg("Error removing failed chat")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chat %d: %s (%d chunks)\n", chat.ID, chat.Title, n)
			return nil
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "chat title (default derived from the file name)")
	return cmd
}

// tokenSink picks how streamed tokens reach stdout.
func tokenSink(cmd *cobra.Command, sse, noStream bool) (func(string) error, func() error) {
	out := cmd.OutOrStdout()
	switch {
	case noStream:
		return nil, func() error { return nil }
	case sse:
		w := llmservice.NewSSEWriter(out)
		return w.Token, w.Done
	default:
		write := func(tok string) error {
			_, err := fmt.Fprint(out, tok)
			return err
		}
		newline := func() error {
			_, err := fmt.Fprintln(out)
			return err
		}
		return write, newline
	}
}

func askCMD(cfgPath *string) *cobra.Command {
	var sse, noStream, showContext bool
	cmd := &cobra.Command{
		Use:   "ask <chat-id> <question>",
		Short: "Ask a question about a chat's document",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			onToken, done := tokenSink(cmd, sse, noStream)
			answer, err := a.svc.Ask(ctx, chatID, strings.Join(args[1:], " "), onToken)
			if err != nil {
				return err
			}
			if onToken == nil {
				fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
			} else if err := done(); err != nil {
				return err
			}
			if showContext && answer.Context.Text != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n%s\n", strings.Repeat("~", 40), answer.Context.Text)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&sse, "sse", false, "emit tokens as server-sent events")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full answer")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved passages")
	return cmd
}

func chatsCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List chats, most recent first",
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			chats, err := a.svc.Chats(ctx)
			if err != nil {
				return err
			}
			printChats(cmd.OutOrStdout(), chats)
			return nil
		}),
	}
}

func imagesCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "List captioned images",
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			images, err := a.svc.Images(cmd.Context())
			if err != nil {
				return err
			}
			printImages(cmd.OutOrStdout(), images)
			return nil
		}),
	}
}

func historyCMD(cfgPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <chat-id>",
		Short: "Show the messages of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			msgs, err := a.svc.History(ctx, chatID)
			if err != nil {
				return err
			}
			if asJSON {
				helper.PrettyPrint(cmd.OutOrStdout(), msgs)
				return nil
			}
			printHistory(cmd.OutOrStdout(), msgs)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print messages as JSON")
	return cmd
}

func printChats(w io.Writer, chats []db.Chat) {
	for _, c := range chats {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.UpdatedAt.Format("2006-01-02 15:04"), c.DocumentFilename, c.Title)
	}
}

// printImages shows the first line of each caption.
func printImages(w io.Writer, images []db.Image) {
	for _, img := range images {
		caption := img.Caption
		if caption == "" {
			caption = "(pending)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", img.ID, img.Filename, strings.SplitN(caption, "\n", 2)[0])
	}
}

func printHistory(w io.Writer, msgs []db.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s\n%s\n\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
	}
}

func deleteCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat with its chunks and messages",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteChat(ctx, chatID); err != nil {
				return err
			}
			log.Info().Int64("chat_id", chatID).Msg("Chat deleted")
			return nil
		}),
	}
}

func describeCMD(cfgPath *string) *cobra.Command {
	var prompt string
	var sse, noStream bool
	cmd := &cobra.Command{
		Use:   "describe <image>",
		Short: "Caption an image using earlier captions as context",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if !parser.IsImage(args[0]) {
				return fmt.Errorf("unsupported image type, allowed: %s", strings.Join(models.AllowedImageExtensions, ", "))
			}
			stored, err := helper.StoreFile(args[0], a.cfg.Storage.ImagesDir())
			if err != nil {
				return fmt.Errorf("error storing image: %w", err)
			}
			onToken, done := tokenSink(cmd, sse, noStream)
			caption, err := a.svc.Describe(ctx, stored, prompt, onToken)
			if caption != nil {
				if onToken == nil {
					fmt.Fprintln(cmd.OutOrStdout(), caption.Text)
				} else if doneErr := done(); doneErr != nil {
					return doneErr
				}
			}
			return err
		}),
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "Describe this image.", "question about the image")
	cmd.Flags().BoolVar(&sse, "sse", false, "emit tokens as server-sent events")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full caption")
	return cmd
}

func reindexCMD(cfgPath *string) *cobra.Command {
	var lists int
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Create the IVFFlat index over chunk embeddings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			bunDB, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer bunDB.Close()

			if lists <= 0 {
				lists = cfg.RAG.IVFFlatLists
			}
			created, err := db.CreateIVFFlatIndex(cmd.Context(), bunDB, models.IVFFlatIndexName, lists)
			if err != nil {
				return err
			}
			log.Info().Bool("created", created).Int("lists", lists).Str("index", models.IVFFlatIndexName).Msg("IVFFlat index ready")
			return nil
		},
	}
	cmd.Flags().IntVar(&lists, "lists", 0, "number of IVF lists (default from config)")
	return cmd
}

func searchCMD(cfgPath *string) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <chat-id> <query>",
		Short: "Show the passages retrieved for a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			if k <= 0 {
				k = a.cfg.RAG.TopK
			}
			cr := a.svc.Retrieve(ctx, chatID, strings.Join(args[1:], " "), k)
			if cr.Err != nil {
				return cr.Err
			}
			if cr.Text == "" {
				log.Info().Int64("chat_id", chatID).Msg("No matching passages")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cr.Text)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of passages (default from config)")
	return cmd
}

func textCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "text <chat-id>",
		Short: "Print a chat's indexed document text",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfgPath, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			text, err := a.svc.DocumentText(ctx, chatID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}),
	}
}
