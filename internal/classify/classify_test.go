package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileImages(t *testing.T) {
	cases := []struct {
		name      string
		mediaType string
	}{
		{"lab.png", "image/png"},
		{"lab.jpg", "image/jpeg"},
		{"scan.webp", "image/webp"},
		{"scan.tiff", ""},       // extension fallback
		{"photo", "image/heic"}, // media type only
	}
	for _, tc := range cases {
		c := File(tc.name, tc.mediaType)
		assert.True(t, c.IsImage, "expected image: %s", tc.name)
		assert.True(t, c.IsSupported, "expected supported: %s", tc.name)
		assert.False(t, c.IsPDF)
		assert.False(t, c.IsDocLike)
	}
}

func TestFilePDFAndDocs(t *testing.T) {
	c := File("report.pdf", "application/pdf")
	assert.True(t, c.IsPDF)
	assert.True(t, c.IsSupported)

	c = File("report.PDF", "")
	assert.True(t, c.IsPDF, "extension fallback should be case-insensitive")

	c = File("laudo.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	assert.True(t, c.IsDocLike)
	assert.True(t, c.IsSupported)

	c = File("laudo.odt", "")
	assert.True(t, c.IsDocLike)
}

func TestFileUnsupported(t *testing.T) {
	cases := []struct {
		name      string
		mediaType string
	}{
		{"notes.txt", "text/plain"},
		{"archive.zip", "application/zip"},
		{"", ""},
		{"noextension", ""},
		{"weird.xyz", "application/octet-stream"},
	}
	for _, tc := range cases {
		c := File(tc.name, tc.mediaType)
		assert.False(t, c.IsSupported, "expected unsupported: %q %q", tc.name, tc.mediaType)
		assert.False(t, c.IsImage)
		assert.False(t, c.IsPDF)
		assert.False(t, c.IsDocLike)
	}
}

func TestFileMediaTypeParameters(t *testing.T) {
	c := File("lab.png", "image/png; charset=binary")
	assert.True(t, c.IsImage)
}
