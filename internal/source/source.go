package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/filetype"
)

// ColorMode defines the color mode for rendering.
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Config controls how slots are produced from the document.
type Config struct {
	DPI       int
	Quality   int
	ColorMode ColorMode
	// Split maps every physical page to two slots (left half, right half).
	Split bool
	// InlineMaxBytes is the largest JPEG kept inline as a data URL;
	// larger renders spill to a temp file.
	InlineMaxBytes int
}

func (c Config) withDefaults() Config {
	if c.DPI <= 0 {
		c.DPI = 144
	}
	if c.Quality <= 0 {
		c.Quality = 85
	}
	if c.ColorMode == "" {
		c.ColorMode = ColorRGB
	}
	if c.InlineMaxBytes <= 0 {
		c.InlineMaxBytes = 1 << 20
	}
	return c
}

// Dimensions is the native size of a slot, captured from the first
// successful render and immutable afterwards.
type Dimensions struct {
	Width  int
	Height int
	Aspect float64
}

// backend abstracts the PDF rendering engine. The default implementation in
// fitz.go uses go-fitz; tests substitute an in-memory one.
type backend interface {
	NumPage() int
	RenderPage(page int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Source opens one PDF document and renders displayable slots from it.
// A slot is a physical page, or half of one when splitting is enabled.
type Source struct {
	cfg  Config
	path string
	doc  backend

	mu       sync.Mutex
	dims     *Dimensions
	spillDir string
}

// Open validates and opens the PDF at path.
func Open(path string, cfg Config) (*Source, error) {
	cfg = cfg.withDefaults()

	if err := filetype.EnsurePDF(path); err != nil {
		return nil, &LoadError{Ref: path, Reason: "not a PDF document", Err: err}
	}

	doc, err := openBackend(path)
	if err != nil {
		return nil, &LoadError{Ref: path, Reason: "open failed", Err: err}
	}

	n := doc.NumPage()
	if n <= 0 {
		_ = doc.Close()
		return nil, &LoadError{Ref: path, Reason: "document has no pages"}
	}

	// Independent page count as a sanity check; fitz wins on mismatch.
	if cnt, cerr := api.PageCountFile(path); cerr != nil {
		log.Warn().Err(cerr).Str("file", path).Msg("pdfcpu page count failed")
	} else if cnt != n {
		log.Warn().Int("fitz", n).Int("pdfcpu", cnt).Str("file", path).Msg("page count mismatch")
	}

	log.Info().Str("file", path).Int("pages", n).Bool("split", cfg.Split).Msg("document opened")
	return &Source{cfg: cfg, path: path, doc: doc}, nil
}

// SlotCount returns the number of displayable slots.
func (s *Source) SlotCount() int {
	n := s.doc.NumPage()
	if s.cfg.Split {
		return n * 2
	}
	return n
}

// Dimensions returns the base slot dimensions once known.
func (s *Source) Dimensions() (Dimensions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == nil {
		return Dimensions{}, false
	}
	return *s.dims, true
}

// RenderSlot renders one slot to an encoded JPEG payload.
func (s *Source) RenderSlot(ctx context.Context, slot int) (*Payload, error) {
	if slot < 0 || slot >= s.SlotCount() {
		return nil, &RenderError{Slot: slot, Err: fmt.Errorf("slot out of range [0,%d)", s.SlotCount())}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, half := slot, 0
	if s.cfg.Split {
		page, half = slot/2, slot%2
	}

	img, err := s.doc.RenderPage(page, float64(s.cfg.DPI))
	if err != nil {
		return nil, &RenderError{Slot: slot, Page: page, Err: err}
	}

	var final image.Image = img
	if s.cfg.Split {
		final = cropHalf(img, half)
	}
	if s.cfg.ColorMode == ColorGray {
		gray := image.NewGray(final.Bounds())
		draw.Draw(gray, gray.Bounds(), final, final.Bounds().Min, draw.Src)
		final = gray
	}

	bounds := final.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: s.cfg.Quality}); err != nil {
		return nil, &RenderError{Slot: slot, Page: page, Err: fmt.Errorf("jpeg encode: %w", err)}
	}
	jpegBytes := buf.Bytes()

	s.recordDimensions(width, height)

	p, err := s.pack(slot, jpegBytes)
	if err != nil {
		return nil, &RenderError{Slot: slot, Page: page, Err: err}
	}
	p.Width, p.Height = width, height

	log.Debug().
		Int("slot", slot).
		Int("page", page).
		Int("width", width).
		Int("height", height).
		Int("jpeg_size", len(jpegBytes)).
		Msg("rendered slot")
	return p, nil
}

// Close releases the document and any spilled render files.
func (s *Source) Close() error {
	s.mu.Lock()
	dir := s.spillDir
	s.spillDir = ""
	s.mu.Unlock()
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
	return s.doc.Close()
}

func (s *Source) recordDimensions(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims != nil || h == 0 {
		return
	}
	s.dims = &Dimensions{Width: w, Height: h, Aspect: float64(w) / float64(h)}
}

// pack chooses the payload representation based on size.
func (s *Source) pack(slot int, jpegBytes []byte) (*Payload, error) {
	if len(jpegBytes) <= s.cfg.InlineMaxBytes {
		return &Payload{Kind: KindDataURL, DataURL: EncodeToDataURL(jpegBytes), Size: len(jpegBytes)}, nil
	}

	dir, err := s.ensureSpillDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("slot-%d.jpg", slot))
	if err := os.WriteFile(path, jpegBytes, 0o644); err != nil {
		return nil, fmt.Errorf("spill render: %w", err)
	}
	return &Payload{Kind: KindFile, Path: path, Size: len(jpegBytes)}, nil
}

func (s *Source) ensureSpillDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spillDir != "" {
		return s.spillDir, nil
	}
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("flipbook_%s", uuid.New().String()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create spill dir: %w", err)
	}
	s.spillDir = dir
	return dir, nil
}

// cropHalf extracts the left (0) or right (1) half of a page image.
func cropHalf(img *image.RGBA, half int) image.Image {
	b := img.Bounds()
	mid := b.Min.X + b.Dx()/2
	rect := image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y)
	if half == 1 {
		rect = image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y)
	}
	return img.SubImage(rect)
}
