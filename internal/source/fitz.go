package source

import (
	"image"
	"image/draw"

	fitz "github.com/gen2brain/go-fitz"
)

// openBackend is swappable so tests can run without CGo/MuPDF.
var openBackend = openFitz

// fitzBackend implements backend using github.com/gen2brain/go-fitz.
type fitzBackend struct {
	doc *fitz.Document
}

func openFitz(path string) (backend, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &fitzBackend{doc: doc}, nil
}

func (b *fitzBackend) NumPage() int { return b.doc.NumPage() }

func (b *fitzBackend) RenderPage(page int, dpi float64) (*image.RGBA, error) {
	img, err := b.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, err
	}
	if rgba, ok := any(img).(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

func (b *fitzBackend) Close() error { return b.doc.Close() }
