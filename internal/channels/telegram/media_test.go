package telegram

import (
	"bytes"
	"image"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/mymmrac/telego"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), imaging.JPEG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDownscaleImageShrinksOversized(t *testing.T) {
	data := encodeJPEG(t, 3000, 500)

	out := downscaleImage(data, 2048)
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if img.Bounds().Dx() > 2048 || img.Bounds().Dy() > 2048 {
		t.Errorf("result is %dx%d, want both edges <= 2048", img.Bounds().Dx(), img.Bounds().Dy())
	}
	// Aspect ratio survives the fit.
	if img.Bounds().Dx() != 2048 {
		t.Errorf("long edge = %d, want 2048", img.Bounds().Dx())
	}
}

func TestDownscaleImagePassesThroughSmall(t *testing.T) {
	data := encodeJPEG(t, 400, 300)
	out := downscaleImage(data, 2048)
	if !bytes.Equal(out, data) {
		t.Error("small image should pass through unchanged")
	}
}

func TestDownscaleImagePassesThroughGarbage(t *testing.T) {
	data := []byte("not an image")
	out := downscaleImage(data, 2048)
	if !bytes.Equal(out, data) {
		t.Error("undecodable input should pass through unchanged")
	}
}

func TestDocumentFileName(t *testing.T) {
	cases := []struct {
		name       string
		doc        *telego.Document
		remotePath string
		want       string
	}{
		{"sender name kept", &telego.Document{FileName: "report.pdf"}, "documents/file_1.pdf", "report.pdf"},
		{"path stripped from sender name", &telego.Document{FileName: "../../etc/passwd"}, "documents/file_1", "passwd"},
		{"synthetic with remote ext", &telego.Document{FileUniqueID: "abc123"}, "documents/file_1.csv", "file_abc123.csv"},
		{"synthetic without ext", &telego.Document{FileUniqueID: "abc123"}, "documents/file_1", "file_abc123.bin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := documentFileName(tc.doc, tc.remotePath); got != tc.want {
				t.Errorf("documentFileName() = %q, want %q", got, tc.want)
			}
		})
	}
}
