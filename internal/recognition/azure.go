package recognition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
)

// azureLineConfidence is assigned to every line; the printed-text OCR API
// does not report confidences
const azureLineConfidence = 0.85

// Azure implements the Backend interface using Azure Computer Vision OCR
type Azure struct {
	client computervision.BaseClient
}

// NewAzure creates a new Azure Computer Vision backend
func NewAzure(endpoint, apiKey string) (*Azure, error) {
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("azure endpoint and api key are required")
	}
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return &Azure{client: client}, nil
}

// Name returns "azure"
func (a *Azure) Name() string { return "azure" }

// Recognize runs printed-text OCR and returns one fragment per line
func (a *Azure) Recognize(ctx context.Context, img Image) ([]Fragment, error) {
	result, err := a.client.RecognizePrintedTextInStream(
		ctx,
		true,
		io.NopCloser(bytes.NewReader(img.Data)),
		computervision.OcrLanguages(computervision.En),
	)
	if err != nil {
		return nil, fmt.Errorf("recognizing printed text: %w", err)
	}
	return azureFragments(result), nil
}

func azureFragments(result computervision.OcrResult) []Fragment {
	if result.Regions == nil {
		return nil
	}
	var fragments []Fragment
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, word := range *line.Words {
				if word.Text != nil {
					words = append(words, *word.Text)
				}
			}
			fragment := Fragment{
				Text:       strings.Join(words, " "),
				Confidence: azureLineConfidence,
			}
			if line.BoundingBox != nil {
				fragment.Box = parseAzureBox(*line.BoundingBox)
			}
			fragments = append(fragments, fragment)
		}
	}
	return fragments
}

// parseAzureBox parses the "x,y,width,height" bounding box string
func parseAzureBox(s string) *Box {
	parts := strings.Split(s, ",")
	if len(parts) < 4 {
		return nil
	}
	vals := make([]int, 4)
	for i := range vals {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return nil
		}
		vals[i] = v
	}
	return &Box{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
}

// Close is a no-op for the REST client
func (a *Azure) Close() error {
	return nil
}
