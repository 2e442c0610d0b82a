// Package classify decides which extraction path applies to an uploaded file.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/rfmoraes/clinic-exams/constants"
)

// Classification tags one file. A file with all flags false is kept as a
// plain attachment and never routed into extraction.
type Classification struct {
	IsImage     bool
	IsPDF       bool
	IsDocLike   bool
	IsSupported bool
}

// File classifies by declared media type first and filename extension as a
// fallback. It is a pure function and fails closed: anything unrecognized
// comes back unsupported rather than erroring.
func File(fileName, mediaType string) Classification {
	var c Classification

	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	ext := constants.NormalizeExt(filepath.Ext(fileName))

	switch {
	case strings.HasPrefix(mt, constants.ImageMediaPrefix):
		c.IsImage = true
	case mt == constants.PDFMediaType:
		c.IsPDF = true
	default:
		if _, ok := constants.DocMediaTypes[mt]; ok {
			c.IsDocLike = true
		}
	}

	// Media type absent or generic: fall back to the extension tables.
	if !c.IsImage && !c.IsPDF && !c.IsDocLike {
		switch constants.MapExtToFormat(ext) {
		case constants.IMAGE:
			c.IsImage = true
		case constants.PDF:
			c.IsPDF = true
		case constants.DOC:
			c.IsDocLike = true
		}
	}

	c.IsSupported = c.IsImage || c.IsPDF || c.IsDocLike
	return c
}
