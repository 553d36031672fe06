// Package pdf assembles uploaded images into a single PDF document, one
// image per A4 page.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// A4 page geometry in millimeters, minus a 10mm margin on every side.
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	margin       = 10.0
	usableWidth  = pageWidth - 2*margin
	usableHeight = pageHeight - 2*margin
)

// Page is one image destined for one PDF page.
type Page struct {
	Name     string
	MimeType string
	Data     []byte
}

// FromImages renders the pages into a portrait A4 PDF, scaling each image to
// fit inside the page margins and centering it. At least one page is
// required.
func FromImages(pages []Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no images to convert")
	}

	doc := fpdf.New("P", "mm", "A4", "")
	for i, page := range pages {
		imgType, err := imageType(page.MimeType)
		if err != nil {
			return nil, fmt.Errorf("page %d (%s): %w", i+1, page.Name, err)
		}

		opts := fpdf.ImageOptions{ImageType: imgType}
		name := fmt.Sprintf("page-%d", i+1)
		info := doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.Data))
		if doc.Err() {
			return nil, fmt.Errorf("page %d (%s): %w", i+1, page.Name, doc.Error())
		}

		w, h := info.Extent()
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("page %d (%s): image has no extent", i+1, page.Name)
		}
		scale := usableWidth / w
		if s := usableHeight / h; s < scale {
			scale = s
		}
		drawW, drawH := w*scale, h*scale
		x := margin + (usableWidth-drawW)/2
		y := margin + (usableHeight-drawH)/2

		doc.AddPage()
		doc.ImageOptions(name, x, y, drawW, drawH, false, opts, 0, "")
		if doc.Err() {
			return nil, fmt.Errorf("page %d (%s): %w", i+1, page.Name, doc.Error())
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// imageType maps a mime type to the fpdf image type tag. Only the formats
// WhatsApp delivers as photos are accepted.
func imageType(mimeType string) (string, error) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "JPG", nil
	case "image/png":
		return "PNG", nil
	default:
		return "", fmt.Errorf("unsupported image type %q", mimeType)
	}
}
