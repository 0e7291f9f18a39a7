package recognition

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic implements the Backend interface using Claude vision models
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates a new Anthropic backend
func NewAnthropic(apiKey string, model string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &Anthropic{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Name returns "anthropic"
func (a *Anthropic) Name() string { return "anthropic" }

// Recognize transcribes the image with a Claude model
func (a *Anthropic) Recognize(ctx context.Context, img Image) ([]Fragment, error) {
	encoded := base64.StdEncoding.EncodeToString(img.Data)

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", encoded),
				anthropic.NewTextBlock(transcriptPrompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}

	var responseText strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText.WriteString(block.Text)
		}
	}

	fragments, err := parseTranscript(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing anthropic transcript: %w", err)
	}
	return fragments, nil
}

// Close is a no-op for the HTTP client
func (a *Anthropic) Close() error {
	return nil
}
