// Package document turns files on disk into page text for the invoice pipeline.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/text/unicode/norm"

	"github.com/zombor/invoice-tracker/internal/lexicon"
	"github.com/zombor/invoice-tracker/internal/recognition"
)

// DefaultMinPageText is the shortest PDF page text trusted without OCR
const DefaultMinPageText = 50

const (
	SourceText = "text"
	SourcePDF  = "pdf_text"
	SourceOCR  = "ocr"
)

var (
	// ErrUnsupportedFormat is returned for files the reader cannot turn into text
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyDocument is returned when a file yields no text at all
	ErrEmptyDocument = errors.New("document contains no text")
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
}

// Page is the text of one page and where it came from
type Page struct {
	Number int                       `json:"number"`
	Text   string                    `json:"text"`
	Source string                    `json:"source"`
	Fusion *recognition.FusionResult `json:"fusion,omitempty"`
}

// Document is a file read into pages
type Document struct {
	Path  string `json:"path"`
	Pages []Page `json:"pages"`
}

// Text joins every page in order
func (d *Document) Text() string {
	texts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Fusions returns the recognition results of every OCR'd page
func (d *Document) Fusions() []recognition.FusionResult {
	var out []recognition.FusionResult
	for _, p := range d.Pages {
		if p.Fusion != nil {
			out = append(out, *p.Fusion)
		}
	}
	return out
}

// Reader reads a file into a Document
type Reader interface {
	Read(ctx context.Context, path string) (*Document, error)
}

// Recognizer fuses recognition backends over one image
type Recognizer interface {
	Fuse(ctx context.Context, img recognition.Image) (recognition.FusionResult, error)
}

// FileReader reads text, PDF and image files. Images and text-poor PDF pages
// need a Recognizer.
type FileReader struct {
	recognizer  Recognizer
	minPageText int
}

// NewFileReader creates a FileReader. recognizer may be nil, in which case
// images are unsupported and PDFs use their embedded text only.
func NewFileReader(recognizer Recognizer) *FileReader {
	return &FileReader{recognizer: recognizer, minPageText: DefaultMinPageText}
}

// Read reads path according to its extension. Unknown extensions are read as text.
func (r *FileReader) Read(ctx context.Context, path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		pages []Page
		err   error
	)
	switch {
	case ext == ".pdf":
		pages, err = r.readPDF(ctx, path)
	case imageTypes[ext] != "":
		pages, err = r.readImage(ctx, path, imageTypes[ext])
	default:
		pages, err = readText(path)
	}
	if err != nil {
		return nil, err
	}

	doc := &Document{Path: path, Pages: pages}
	for i := range doc.Pages {
		doc.Pages[i].Text = Normalize(doc.Pages[i].Text)
	}
	if strings.TrimSpace(doc.Text()) == "" {
		return nil, fmt.Errorf("reading %s: %w", path, ErrEmptyDocument)
	}
	return doc, nil
}

func readText(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return []Page{{Number: 1, Text: strings.ToValidUTF8(string(data), ""), Source: SourceText}}, nil
}

func (r *FileReader) readPDF(ctx context.Context, path string) ([]Page, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]Page, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			slog.Warn("Failed to extract PDF page text", "path", path, "page", i+1, "error", err)
			text = ""
		}
		page := Page{Number: i + 1, Text: text, Source: SourcePDF}

		if lexicon.Length(strings.TrimSpace(text)) < r.minPageText && r.recognizer != nil {
			if ocr, ok := r.ocrPDFPage(ctx, doc, i, path); ok {
				page = ocr
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (r *FileReader) ocrPDFPage(ctx context.Context, doc *fitz.Document, i int, path string) (Page, bool) {
	data, err := recognition.RenderPDFPage(doc, i)
	if err != nil {
		slog.Warn("Failed to render PDF page", "path", path, "page", i+1, "error", err)
		return Page{}, false
	}
	fusion, err := r.recognizer.Fuse(ctx, recognition.Image{Data: data, ContentType: "image/png"})
	if err != nil {
		slog.Warn("OCR fallback failed", "path", path, "page", i+1, "error", err)
		return Page{}, false
	}
	return Page{Number: i + 1, Text: fusion.Text, Source: SourceOCR, Fusion: &fusion}, true
}

func (r *FileReader) readImage(ctx context.Context, path, contentType string) ([]Page, error) {
	if r.recognizer == nil {
		return nil, fmt.Errorf("%s without recognition backends: %w", contentType, ErrUnsupportedFormat)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	fusion, err := r.recognizer.Fuse(ctx, recognition.Image{Data: data, ContentType: contentType})
	if err != nil {
		// all backends failing leaves the page empty rather than failing the read
		slog.Warn("Image recognition failed", "path", path, "error", err)
	}
	return []Page{{Number: 1, Text: fusion.Text, Source: SourceOCR, Fusion: &fusion}}, nil
}

// Normalize applies NFKC, folds line endings to LF and trims trailing spaces
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
