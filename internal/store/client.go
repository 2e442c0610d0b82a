// Package store talks to the external document+blob store. The store is an
// authenticated HTTP collaborator: documents are CRUD-by-id inside named
// collections, blobs are addressed by path inside a bucket.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rfmoraes/clinic-exams/internal/common"
)

// ErrNotFound reports a missing document or blob.
var ErrNotFound = errors.New("store: not found")

type Config struct {
	BaseURL    string
	APIKey     string
	DatabaseID string
	BucketID   string
	Timeout    time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DatabaseID == "" {
		cfg.DatabaseID = "clinic"
	}
	if cfg.BucketID == "" {
		cfg.BucketID = "exam-files"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

func (c *Client) documentsURL(collection string) string {
	return fmt.Sprintf("%s/v1/databases/%s/collections/%s/documents",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.DatabaseID), url.PathEscape(collection))
}

// BlobURL returns the canonical remote URL for a path-addressed blob. Every
// attachment either carries this resolved URL or is resolvable from it; no
// alternate-path guessing exists.
func (c *Client) BlobURL(path string) string {
	return fmt.Sprintf("%s/v1/buckets/%s/files/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.BucketID), escapePath(path))
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// CreateDocument writes a new document and returns its store-assigned id.
func (c *Client) CreateDocument(ctx context.Context, collection string, doc any) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.documentsURL(collection), doc, &created)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", common.Failuref(common.KindServerRejected, "store returned no document id")
	}
	return created.ID, nil
}

func (c *Client) GetDocument(ctx context.Context, collection, id string, out any) error {
	return c.doJSON(ctx, http.MethodGet, c.documentsURL(collection)+"/"+url.PathEscape(id), nil, out)
}

func (c *Client) UpdateDocument(ctx context.Context, collection, id string, doc any) error {
	return c.doJSON(ctx, http.MethodPut, c.documentsURL(collection)+"/"+url.PathEscape(id), doc, nil)
}

func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	return c.doJSON(ctx, http.MethodDelete, c.documentsURL(collection)+"/"+url.PathEscape(id), nil, nil)
}

// ListDocuments fetches every document matching the equality filter. The
// store offers no secondary indexes beyond these filters; callers scan.
func (c *Client) ListDocuments(ctx context.Context, collection string, filter map[string]string, out any) error {
	u := c.documentsURL(collection)
	if len(filter) > 0 {
		q := url.Values{}
		for k, v := range filter {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}
	var envelope struct {
		Documents json.RawMessage `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &envelope); err != nil {
		return err
	}
	if envelope.Documents == nil {
		envelope.Documents = json.RawMessage("[]")
	}
	if err := json.Unmarshal(envelope.Documents, out); err != nil {
		return common.NewFailure(common.KindServerRejected, "malformed document list", err)
	}
	return nil
}

// UploadBlob stores data under path and returns the resolved remote URL.
func (c *Client) UploadBlob(ctx context.Context, path, fileName, mediaType string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return "", common.NewFailure(common.KindNetworkFailure, "build upload body", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", common.NewFailure(common.KindNetworkFailure, "write upload body", err)
	}
	if mediaType != "" {
		_ = w.WriteField("mediaType", mediaType)
	}
	if err := w.Close(); err != nil {
		return "", common.NewFailure(common.KindNetworkFailure, "finish upload body", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.BlobURL(path), w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}
	defer c.closeBody(resp)

	if resp.StatusCode/100 != 2 {
		return "", c.statusFailure(resp)
	}
	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil || uploaded.URL == "" {
		// Stores that return no body still honor the canonical URL.
		return c.BlobURL(path), nil
	}
	return uploaded.URL, nil
}

// DownloadBlob fetches the raw bytes stored under path.
func (c *Client) DownloadBlob(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.BlobURL(path), "", nil)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return nil, c.statusFailure(resp)
	}
	return io.ReadAll(resp.Body)
}

// DeleteBlob removes the blob stored under path. Deleting a blob that is
// already gone is not an error.
func (c *Client) DeleteBlob(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.BlobURL(path), "", nil)
	if err != nil {
		return err
	}
	defer c.closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode/100 != 2 {
		return c.statusFailure(resp)
	}
	return nil
}

// StatBlob checks that a blob exists under path.
func (c *Client) StatBlob(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodHead, c.BlobURL(path), "", nil)
	if err != nil {
		return err
	}
	defer c.closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return c.statusFailure(resp)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return common.NewFailure(common.KindNetworkFailure, "encode request", err)
		}
		reader = bytes.NewReader(b)
	}
	resp, err := c.do(ctx, method, url, "application/json", reader)
	if err != nil {
		return err
	}
	defer c.closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return c.statusFailure(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return common.NewFailure(common.KindServerRejected, "malformed store response", err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		cancel()
		return nil, common.NewFailure(common.KindNetworkFailure, "build store request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, common.NewFailure(common.KindTimeout, "store request timed out", err)
		}
		return nil, common.NewFailure(common.KindNetworkFailure, "store request failed", err)
	}
	resp.Body = &cancelingBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) statusFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
	return common.Failuref(common.KindServerRejected, "store returned status %d: %s",
		resp.StatusCode, strings.TrimSpace(string(raw)))
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.log.Warn("store response body close error", "error", err)
	}
}

// cancelingBody ties the per-request timeout context to body consumption.
type cancelingBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelingBody) Close() error {
	b.cancel()
	return b.ReadCloser.Close()
}
