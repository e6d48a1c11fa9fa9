// Package pdf rasterizes uploaded PDF documents into JPEG data URIs that
// can be attached to a chat message.
package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
)

const (
	DefaultMaxPages = 15
	// DefaultDPI renders pages at 1.5 times their 72 DPI size.
	DefaultDPI     = 108
	DefaultQuality = 90
)

// Document is an open PDF.
type Document interface {
	NumPage() int
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Opener opens a PDF held in memory.
type Opener func(data []byte) (Document, error)

type fitzDocument struct {
	doc *fitz.Document
}

func (d fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d fitzDocument) Render(page int, dpi float64) (image.Image, error) {
	return d.doc.ImageDPI(page, dpi)
}

func (d fitzDocument) Close() error { return d.doc.Close() }

// OpenFitz opens data with MuPDF.
func OpenFitz(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzDocument{doc: doc}, nil
}

type Converter struct {
	open     Opener
	maxPages int
	dpi      float64
	quality  int
}

type Option func(*Converter)

func WithOpener(o Opener) Option {
	return func(c *Converter) {
		c.open = o
	}
}

func WithMaxPages(n int) Option {
	return func(c *Converter) {
		c.maxPages = n
	}
}

func WithDPI(dpi float64) Option {
	return func(c *Converter) {
		c.dpi = dpi
	}
}

func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		open:     OpenFitz,
		maxPages: DefaultMaxPages,
		dpi:      DefaultDPI,
		quality:  DefaultQuality,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsPDF reports whether data starts with the PDF signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Convert renders every page to a JPEG data URI, in page order. Documents
// with too many pages are refused before anything is rendered.
func (c *Converter) Convert(ctx context.Context, data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, types.NewValidationError("No selected file")
	}
	if !IsPDF(data) {
		return nil, types.NewValidationError("Invalid file type. Please upload a PDF file.")
	}

	doc, err := c.open(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > c.maxPages {
		return nil, types.NewValidationError("PDF has %d pages. Maximum allowed is %d pages.", pages, c.maxPages)
	}

	images := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.Render(i, c.dpi)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}
		images = append(images, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(buf.Bytes()))
	}

	xlog.Debug("Converted PDF", "pages", pages, "dpi", c.dpi)
	return images, nil
}
