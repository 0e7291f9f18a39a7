package recognition

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Backend interface with a local tesseract install.
// A fresh client is created per call so concurrent use is safe.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a Tesseract backend. Languages default to "eng".
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

// Name returns "tesseract"
func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs tesseract and returns one fragment per text line
func (t *Tesseract) Recognize(ctx context.Context, img Image) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("setting languages: %w", err)
	}
	if err := c.SetImageFromBytes(img.Data); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognizing text lines: %w", err)
	}

	fragments := make([]Fragment, 0, len(boxes))
	for _, b := range boxes {
		fragments = append(fragments, Fragment{
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
			Box: &Box{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
		})
	}
	return fragments, nil
}

// Close is a no-op; clients are closed per call
func (t *Tesseract) Close() error {
	return nil
}
