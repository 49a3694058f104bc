package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/phillip/haojiu-go/models"
)

var ErrPosterUnavailable = errors.New("poster generation is not configured")

// PosterGenerator draws an event poster.
type PosterGenerator interface {
	Generate(ctx context.Context, ev *models.Event) (io.Reader, error)
}

type OpenAIPosters struct {
	client *openai.Client
	model  string
}

func NewOpenAIPosters(apiKey string) *OpenAIPosters {
	return &OpenAIPosters{client: openai.NewClient(apiKey), model: openai.CreateImageModelDallE3}
}

// NewOpenAIPostersWithConfig is used to point the client at another base URL.
func NewOpenAIPostersWithConfig(cfg openai.ClientConfig) *OpenAIPosters {
	return &OpenAIPosters{client: openai.NewClientWithConfig(cfg), model: openai.CreateImageModelDallE3}
}

func (p *OpenAIPosters) Generate(ctx context.Context, ev *models.Event) (io.Reader, error) {
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         PosterPrompt(ev),
		Model:          p.model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("image API call failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image API returned no image")
	}

	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return bytes.NewReader(img), nil
}

// PosterPrompt describes ev for the image model.
func PosterPrompt(ev *models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A vibrant, eye-catching event poster for %q.", ev.Title)
	if ev.Category != "" {
		fmt.Fprintf(&b, " Category: %s.", ev.Category)
	}
	if ev.Description != "" {
		desc := []rune(ev.Description)
		if len(desc) > 300 {
			desc = desc[:300]
		}
		fmt.Fprintf(&b, " Theme: %s.", string(desc))
	}
	if ev.EventType == models.Online {
		b.WriteString(" It is an online event.")
	} else if ev.City != "" {
		fmt.Fprintf(&b, " Set in %s.", ev.City)
	}
	b.WriteString(" Modern flat illustration, no text.")
	return b.String()
}

// NoPosters is used when no image API key is configured.
type NoPosters struct{}

func (NoPosters) Generate(context.Context, *models.Event) (io.Reader, error) {
	return nil, ErrPosterUnavailable
}
