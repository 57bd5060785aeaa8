package source

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// PayloadKind tags how a rendered image is carried.
type PayloadKind int

const (
	// KindDataURL keeps the JPEG inline as a base64 data URL.
	KindDataURL PayloadKind = iota
	// KindFile spills the JPEG to a temp file owned by the payload.
	KindFile
)

const dataURLPrefix = "data:image/jpeg;base64,"

// Payload is one rendered slot image. Exactly one of DataURL/Path is set,
// according to Kind. Released payloads must not be read again.
type Payload struct {
	Kind    PayloadKind
	DataURL string
	Path    string
	Size    int
	Width   int
	Height  int
}

// Bytes returns the raw JPEG regardless of representation.
func (p *Payload) Bytes() ([]byte, error) {
	switch p.Kind {
	case KindDataURL:
		b64 := strings.TrimPrefix(p.DataURL, dataURLPrefix)
		return base64.StdEncoding.DecodeString(b64)
	case KindFile:
		return os.ReadFile(p.Path)
	default:
		return nil, fmt.Errorf("unknown payload kind %d", p.Kind)
	}
}

// Release frees externally-allocated resources. Inline payloads have none;
// file-backed payloads delete their spill file. Safe to call twice.
func (p *Payload) Release() {
	if p.Kind == KindFile && p.Path != "" {
		_ = os.Remove(p.Path)
		p.Path = ""
	}
}

// EncodeToDataURL converts JPEG bytes to an inline data URL.
func EncodeToDataURL(jpegBytes []byte) string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString(jpegBytes)
}
