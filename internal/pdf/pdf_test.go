package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestFromImages(t *testing.T) {
	pages := []Page{
		{Name: "a.png", MimeType: "image/png", Data: encodePNG(t, 40, 60)},
		{Name: "b.jpg", MimeType: "image/jpeg", Data: encodeJPEG(t, 80, 20)},
	}

	out, err := FromImages(pages)
	if err != nil {
		t.Fatalf("FromImages: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Errorf("output does not start with a PDF header, got %q", out[:min(8, len(out))])
	}
	if !bytes.Contains(out, []byte("/Count 2")) {
		t.Errorf("output does not declare 2 pages")
	}
}

func TestFromImagesEmpty(t *testing.T) {
	if _, err := FromImages(nil); err == nil {
		t.Fatal("expected an error for an empty page list")
	}
}

func TestFromImagesUnsupportedType(t *testing.T) {
	pages := []Page{{Name: "c.gif", MimeType: "image/gif", Data: []byte("GIF89a")}}
	_, err := FromImages(pages)
	if err == nil {
		t.Fatal("expected an error for an unsupported image type")
	}
	if !strings.Contains(err.Error(), "unsupported image type") {
		t.Errorf("error %q does not name the unsupported type", err)
	}
}

func TestFromImagesCorruptData(t *testing.T) {
	pages := []Page{{Name: "d.png", MimeType: "image/png", Data: []byte("not a png")}}
	if _, err := FromImages(pages); err == nil {
		t.Fatal("expected an error for corrupt image data")
	}
}
