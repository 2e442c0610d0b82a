package constants

import "strings"

// Formats for the format field in extraction jobs.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
	DOC   = "DOC"
	TXT   = "TXT"
)

// ImageExtensions holds the image extensions the recognizer accepts.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
}

// DocExtensions holds word-processor extensions routed to the file extraction path.
var DocExtensions = map[string]struct{}{
	"doc":  {},
	"docx": {},
	"odt":  {},
	"rtf":  {},
}

// ImageMediaPrefix matches any image/* media type.
const ImageMediaPrefix = "image/"

// PDFMediaType is the canonical PDF media type.
const PDFMediaType = "application/pdf"

// DocMediaTypes holds word-processor media types.
var DocMediaTypes = map[string]struct{}{
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.oasis.opendocument.text":                                 {},
	"application/rtf":                                                         {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the processing format for an extension, or "" when unsupported.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if ext == "pdf" {
		return PDF
	}
	if _, ok := ImageExtensions[ext]; ok {
		return IMAGE
	}
	if _, ok := DocExtensions[ext]; ok {
		return DOC
	}
	return ""
}
