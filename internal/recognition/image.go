package recognition

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// prepare converts img to PNG and optionally enhances it for OCR
func (c *Coordinator) prepare(img Image) (Image, error) {
	data, err := ToPNG(img.Data, img.ContentType)
	if err != nil {
		return Image{}, err
	}
	if c.preprocess {
		data, err = Enhance(data)
		if err != nil {
			return Image{}, err
		}
	}
	return Image{Data: data, ContentType: "image/png"}, nil
}

// ToPNG converts PDFs (first page) and any supported image format to PNG
func ToPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/png"
	}

	switch {
	case mimeType == "application/pdf":
		out, err := pdfPageToPNG(data, 0)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return out, nil
	case mimeType == "image/png" && !isHEICFormat(data):
		return data, nil
	}

	out, err := imageToPNG(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("converting image to PNG: %w", err)
	}
	return out, nil
}

// RenderPDFPage rasterizes one page of a PDF as PNG
func RenderPDFPage(doc *fitz.Document, page int) ([]byte, error) {
	img, err := doc.Image(page)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page %d: %w", page, err)
	}
	return encodePNG(img)
}

func pdfPageToPNG(pdfData []byte, page int) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	return RenderPDFPage(doc, page)
}

func imageToPNG(data []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Go's image package has no HEIC decoder
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding %s image: %w", mimeType, err)
		}
	}

	return encodePNG(img)
}

// Enhance applies the grayscale/contrast/sharpen pass used before OCR
func Enhance(pngData []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decoding image for preprocessing: %w", err)
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	img = imaging.AdjustBrightness(img, 10)
	img = imaging.AdjustGamma(img, 1.2)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding preprocessed image: %w", err)
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
