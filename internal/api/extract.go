package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rfmoraes/clinic-exams/constants"
	"github.com/rfmoraes/clinic-exams/internal/analyze"
	"github.com/rfmoraes/clinic-exams/internal/classify"
	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/results"
)

// extractResponse is the wire shape of the extraction boundary.
type extractResponse struct {
	Success bool        `json:"success"`
	Data    results.Set `json:"data,omitempty"`
	Warning string      `json:"warning,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type textRequest struct {
	Text        string `json:"text"`
	ExtractType string `json:"extractType"`
}

// handleExtract accepts the two request shapes: a JSON body with recognized
// text, or a multipart body with a raw file that still needs text recovery.
func (s *Server) handleExtract(c *gin.Context) {
	ct := c.ContentType()
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		s.extractFromFile(c)
	case ct == "application/json" || ct == "":
		s.extractFromText(c)
	default:
		c.JSON(http.StatusUnsupportedMediaType, extractResponse{
			Error: "expected application/json or multipart/form-data",
		})
	}
}

func (s *Server) extractFromText(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, extractResponse{Error: "malformed request body"})
		return
	}
	if req.ExtractType != "exam" {
		c.JSON(http.StatusBadRequest, extractResponse{Error: "unsupported extractType"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, extractResponse{Error: "text must not be empty"})
		return
	}

	jobID, _ := s.journal.Start(c.Request.Context(), c.GetHeader("X-Patient-ID"), "", "", constants.TXT)
	s.analyzeAndRespond(c, jobID, req.Text, "")
}

func (s *Server) extractFromFile(c *gin.Context) {
	ctx := c.Request.Context()

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, extractResponse{Error: "missing file part"})
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > s.cfg.MaxFileSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, extractResponse{
			Error: "file exceeds the configured size limit",
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxFileSizeBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, extractResponse{Error: "could not read file payload"})
		return
	}
	if int64(len(data)) > s.cfg.MaxFileSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, extractResponse{
			Error: "file exceeds the configured size limit",
		})
		return
	}

	mediaType := c.PostForm("mediaType")
	if mediaType == "" {
		mediaType = header.Header.Get("Content-Type")
	}
	cls := classify.File(header.Filename, mediaType)

	format := "FILE"
	switch {
	case cls.IsImage:
		format = constants.IMAGE
	case cls.IsPDF:
		format = constants.PDF
	case cls.IsDocLike:
		format = constants.DOC
	}
	jobID, _ := s.journal.Start(ctx, c.GetHeader("X-Patient-ID"), "", header.Filename, format)

	var text string
	switch {
	case cls.IsImage:
		text, err = s.reader.ImageText(ctx, data)
	case cls.IsPDF:
		text, err = s.reader.PDFText(ctx, data)
	case cls.IsDocLike:
		// No server-side text recovery for word-processor formats yet; the
		// caller keeps the attachment and may retry once support lands.
		s.respondWarning(c, jobID, "word-processor documents are not yet readable server-side")
		return
	default:
		_ = s.journal.FinishFailure(ctx, jobID, "unsupported file type")
		c.JSON(http.StatusOK, extractResponse{Error: "unsupported file type"})
		return
	}
	if err != nil {
		if common.IsKind(err, common.KindInsufficientText) {
			s.respondWarning(c, jobID, "the document contains too little readable text")
			return
		}
		_ = s.journal.FinishFailure(ctx, jobID, err.Error())
		s.log.Error("text recovery failed", "file", header.Filename, "error", err)
		c.JSON(http.StatusOK, extractResponse{Error: "text recovery failed"})
		return
	}
	_ = s.journal.FinishOCR(ctx, jobID, len(text))

	s.analyzeAndRespond(c, jobID, text, header.Filename)
}

func (s *Server) analyzeAndRespond(c *gin.Context, jobID uuid.UUID, text, filenameHint string) {
	ctx := c.Request.Context()

	set, _, err := s.analyzer.AnalyzeText(ctx, analyze.Request{
		Text:              text,
		FilenameHint:      filenameHint,
		AllowedCategories: constants.AsStringSlice(),
		Language:          "pt-BR",
	})
	if err != nil {
		_ = s.journal.FinishFailure(ctx, jobID, err.Error())
		s.log.Error("analysis failed", "error", err)
		c.JSON(http.StatusOK, extractResponse{Error: "analysis failed"})
		return
	}
	if set.Empty() {
		s.respondWarning(c, jobID, "no structured results found")
		return
	}

	_ = s.journal.FinishAnalyzed(ctx, jobID, set.Len())
	c.JSON(http.StatusOK, extractResponse{Success: true, Data: set})
}

func (s *Server) respondWarning(c *gin.Context, jobID uuid.UUID, warning string) {
	_ = s.journal.FinishWarned(c.Request.Context(), jobID, warning)
	c.JSON(http.StatusOK, extractResponse{Warning: warning})
}
