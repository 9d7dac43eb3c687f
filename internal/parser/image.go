package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowbrg/homer/graph/model"
)

// transcriptionPrompt asks a vision model for the literal page text,
// nothing else, so the output can be chunked like any other document.
const transcriptionPrompt = "Transcribe all text visible in this image. " +
	"Return only the transcribed text, preserving paragraph structure. " +
	"If the image contains no text, return an empty response."

// ImageLoader transcribes scanned pages and photos with a vision-capable
// chat model.
type ImageLoader struct {
	vision model.ChatModel
}

// NewImageLoader creates an ImageLoader backed by the given vision model.
func NewImageLoader(vision model.ChatModel) *ImageLoader {
	return &ImageLoader{vision: vision}
}

// Extensions implements Loader.
func (l *ImageLoader) Extensions() []string {
	return []string{".png", ".jpg", ".jpeg"}
}

// Load implements Loader.
func (l *ImageLoader) Load(ctx context.Context, path string) (Document, error) {
	data, err := readFile(path)
	if err != nil {
		return Document{}, err
	}

	out, err := l.vision.Chat(ctx, []model.Message{
		{
			Role:    model.RoleUser,
			Content: transcriptionPrompt,
			Images:  [][]byte{data},
		},
	}, nil)
	if err != nil {
		return Document{}, fmt.Errorf("transcribe %s: %w", path, err)
	}

	return Document{Source: path, Content: strings.TrimSpace(out.Text)}, nil
}
