package llmservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"document-chat/internal/models"

	"github.com/rs/zerolog/log"
)

// Image is an inline image attachment.
type Image struct {
	MIMEType string
	Data     []byte
}

var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// LoadImage reads an image file from disk.
func LoadImage(path string) (Image, error) {
	mimeType, ok := imageMIMETypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Image{}, fmt.Errorf("unsupported image type: %s", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, err
	}
	return Image{MIMEType: mimeType, Data: data}, nil
}

// ExtractDocument asks the vision model to transcribe everything visible in
// the image at path. An empty answer is reported as an extraction failure.
func (c *Client) ExtractDocument(ctx context.Context, path string, timeout time.Duration) (string, error) {
	img, err := LoadImage(path)
	if err != nil {
		return "", &models.ExtractionError{Filename: filepath.Base(path), Reason: err.Error()}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := c.llm.GenerateContent(ctx, BuildMessages(models.ExtractionSystemPrompt, models.ExtractionUserPrompt, []Image{img}))
	if err != nil {
		return "", &models.ExtractionError{Filename: filepath.Base(path), Reason: err.Error()}
	}
	if len(content.Choices) == 0 || strings.TrimSpace(content.Choices[0].Content) == "" {
		return "", &models.ExtractionError{Filename: filepath.Base(path), Reason: "model returned empty content"}
	}

	text := strings.TrimSpace(content.Choices[0].Content)
	log.Info().Str("file", filepath.Base(path)).Int("chars", len(text)).Dur("took", time.Since(start)).Msg("Extracted document")
	return text, nil
}
