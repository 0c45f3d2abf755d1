package db

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// CreateImage stores a placeholder row for an image awaiting its caption.
func CreateImage(ctx context.Context, db bun.IDB, filename string) (*Image, error) {
	img := &Image{Filename: filename, CreatedAt: time.Now()}
	if _, err := db.NewInsert().Model(img).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create image: %w", err)
	}
	return img, nil
}

func CreateInteraction(ctx context.Context, db bun.IDB, imageID int64, prompt string) (*Interaction, error) {
	it := &Interaction{ImageID: imageID, UserPrompt: prompt, CreatedAt: time.Now()}
	if _, err := db.NewInsert().Model(it).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create interaction: %w", err)
	}
	return it, nil
}

// UpdateImageCaption sets the caption and its encoded embedding.
func UpdateImageCaption(ctx context.Context, db bun.IDB, imageID int64, caption string, vec []float32) error {
	_, err := db.NewUpdate().
		Model((*Image)(nil)).
		Set("caption = ?", caption).
		Set("embedding = ?", EncodeVector(vec)).
		Where("id = ?", imageID).
		Exec(ctx)
	return err
}

func UpdateInteractionResponse(ctx context.Context, db bun.IDB, interactionID int64, response string) error {
	_, err := db.NewUpdate().
		Model((*Interaction)(nil)).
		Set("model_response = ?", response).
		Where("id = ?", interactionID).
		Exec(ctx)
	return err
}

// ListImages returns every image with its caption, oldest first.
func ListImages(ctx context.Context, db bun.IDB) ([]Image, error) {
	var images []Image
	err := db.NewSelect().Model(&images).Order("i.id ASC").Scan(ctx)
	return images, err
}
