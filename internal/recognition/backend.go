package recognition

import (
	"context"
	"errors"
)

var (
	// ErrAllBackendsFailed is returned by Fuse when no backend produced usable text
	ErrAllBackendsFailed = errors.New("all recognition backends failed")
	// ErrNoBackends is returned when a Coordinator is built without backends
	ErrNoBackends = errors.New("no recognition backends configured")
)

// Image is a page image handed to recognition backends
type Image struct {
	Data        []byte
	ContentType string
}

// Box is the bounding position of a fragment in image pixels
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fragment is one piece of recognized text
type Fragment struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0..1
	Box        *Box    `json:"box,omitempty"`
}

// Backend defines the interface for text recognition engines
type Backend interface {
	// Name identifies the backend in fusion results and logs
	Name() string
	// Recognize returns the text fragments found in a PNG image.
	// Implementations must honour ctx cancellation and be safe for concurrent use.
	Recognize(ctx context.Context, img Image) ([]Fragment, error)
	// Close releases resources held by the backend
	Close() error
}
