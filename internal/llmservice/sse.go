package llmservice

import (
	"fmt"
	"io"

	"document-chat/internal/models"
)

// SSEWriter frames streamed tokens as server-sent events.
type SSEWriter struct {
	w io.Writer
}

func NewSSEWriter(w io.Writer) *SSEWriter {
	return &SSEWriter{w: w}
}

// Token writes one "data: <token>" event. It matches the onToken callback
// signature used by Stream.
func (s *SSEWriter) Token(token string) error {
	_, err := fmt.Fprintf(s.w, "%s %s\n\n", models.StreamDataPrefix, token)
	return err
}

// Done writes the terminal marker event.
func (s *SSEWriter) Done() error {
	return s.Token(models.StreamDoneMarker)
}
