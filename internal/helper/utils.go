package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"document-chat/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// pretty print
func PrettyPrint(w io.Writer, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Fprintln(w, string(b))
}

func CreateFolder(path string) error {
	return os.MkdirAll(path, 0o755)
}

// StoreFile copies src into dir as "<unix millis>_<base name>" and returns
// the stored path. Files over MaxFileSizeMB are rejected.
func StoreFile(src, dir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if limit := int64(models.MaxFileSizeMB) << 20; info.Size() > limit {
		return "", fmt.Errorf("file %s is %d bytes, limit is %d MB", filepath.Base(src), info.Size(), models.MaxFileSizeMB)
	}
	if err := CreateFolder(dir); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dest := filepath.Join(dir, fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(src)))
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	log.Debug().Str("src", src).Str("dest", dest).Msg("Stored file")
	return dest, nil
}
