package filetype

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectPDFByMagicBytes(t *testing.T) {
	// Extension deliberately wrong; detection must use content.
	path := writeFile(t, "doc.bin", []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF"))

	info, err := Detect(path)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !info.IsPDF {
		t.Errorf("IsPDF = false for %q", info.MIMEType)
	}
	if info.MIMEType != "application/pdf" {
		t.Errorf("mime = %q, want application/pdf", info.MIMEType)
	}
}

func TestEnsurePDFRejectsOtherTypes(t *testing.T) {
	path := writeFile(t, "doc.pdf", []byte("just some plain text"))
	if err := EnsurePDF(path); err == nil {
		t.Error("EnsurePDF accepted a text file with a .pdf name")
	}
}

func TestEnsurePDFMissingFile(t *testing.T) {
	if err := EnsurePDF(filepath.Join(t.TempDir(), "absent.pdf")); err == nil {
		t.Error("EnsurePDF accepted a missing file")
	}
}
