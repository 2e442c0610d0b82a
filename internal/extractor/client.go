// Package extractor is the client side of the structured-extraction boundary.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/results"
)

// ExtractTypeExam is the extraction hint sent with recognized text.
const ExtractTypeExam = "exam"

// Outcome is a successful boundary round-trip. Warning is set when the server
// ran fine but found no structured results; Data is nil in that case.
type Outcome struct {
	Data    results.Set
	Warning string
}

// response is the wire shape of the extraction boundary.
type response struct {
	Success bool        `json:"success"`
	Data    results.Set `json:"data,omitempty"`
	Warning string      `json:"warning,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
}

// ExtractText sends recognized text with the "exam" extraction hint.
func (c *Client) ExtractText(ctx context.Context, text string) (Outcome, error) {
	body, err := json.Marshal(map[string]string{
		"text":        text,
		"extractType": ExtractTypeExam,
	})
	if err != nil {
		return Outcome{}, common.NewFailure(common.KindServerRejected, "encode request", err)
	}
	return c.roundTrip(ctx, "application/json", bytes.NewReader(body))
}

// ExtractFile sends a raw file payload as a multipart body, used for PDF and
// word-processor inputs that skip local recognition.
func (c *Client) ExtractFile(ctx context.Context, fileName, mediaType string, blob io.Reader) (Outcome, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return Outcome{}, common.NewFailure(common.KindServerRejected, "build multipart body", err)
	}
	if _, err := io.Copy(part, blob); err != nil {
		return Outcome{}, common.NewFailure(common.KindServerRejected, "read file payload", err)
	}
	if mediaType != "" {
		_ = w.WriteField("mediaType", mediaType)
	}
	if err := w.Close(); err != nil {
		return Outcome{}, common.NewFailure(common.KindServerRejected, "finish multipart body", err)
	}
	return c.roundTrip(ctx, w.FormDataContentType(), &buf)
}

func (c *Client) roundTrip(ctx context.Context, contentType string, body io.Reader) (Outcome, error) {
	rid := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Outcome{}, common.NewFailure(common.KindServerRejected, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.log.Error("extract.timeout", "req_id", rid, "elapsed_ms", elapsed)
			return Outcome{}, common.NewFailure(common.KindTimeout, "extraction request timed out", err)
		}
		c.log.Error("extract.transport_error", "req_id", rid, "error", err, "elapsed_ms", elapsed)
		return Outcome{}, common.NewFailure(common.KindNetworkFailure, "extraction request failed", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("extract.body_close_error", "req_id", rid, "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	c.log.Info("extract.response",
		"req_id", rid,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return Outcome{}, common.Failuref(common.KindServerRejected,
			"extraction server returned status %d", resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return Outcome{}, common.NewFailure(common.KindServerRejected, "malformed extraction response", err)
	}

	if !r.Success {
		if r.Warning != "" {
			return Outcome{Warning: r.Warning}, nil
		}
		msg := r.Error
		if msg == "" {
			msg = "extraction server reported failure without detail"
		}
		return Outcome{}, common.Failuref(common.KindServerRejected, "%s", msg)
	}
	if r.Data.Empty() {
		// Success with an empty table is the soft outcome too.
		return Outcome{Warning: "no structured results found"}, nil
	}
	return Outcome{Data: r.Data}, nil
}

func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Timeout() || errors.Is(uerr.Err, context.DeadlineExceeded)
	}
	var nerr interface{ Timeout() bool }
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}
