package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rfmoraes/clinic-exams/internal/results"
)

// OpenAIConfig for the chat-completions analyzer.
type OpenAIConfig struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
}

// OpenAIClient implements Analyzer with text-only chat/completions.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

func (c *OpenAIClient) AnalyzeText(ctx context.Context, req Request) (results.Set, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("analyze.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(req.Text),
		"filename_hint", req.FilenameHint,
		"allowed_categories", len(req.AllowedCategories),
	)

	schema := BuildResultsJSONSchema(req.AllowedCategories)
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(req)},
			{"role": "user", "content": buildUserPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("analyze.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, raw, fmt.Errorf("no choices in openai response")
	}
	rawContent := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	// Sanitize first (canonical categories, string coercion), then validate.
	cleaned, dropped, sErr := SanitizeResults(rawContent)
	if sErr != nil {
		c.log.Error("analyze.sanitize_failed", "req_id", rid, "error", sErr)
		return nil, rawContent, fmt.Errorf("sanitize results: %w", sErr)
	}
	if len(dropped) > 0 {
		c.log.Warn("analyze.sanitize_applied", "req_id", rid, "dropped", dropped)
	}
	if err := ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		c.log.Error("analyze.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned))
		return nil, rawContent, fmt.Errorf("schema validation failed: %w", err)
	}

	var set results.Set
	if err := json.Unmarshal(cleaned, &set); err != nil {
		return nil, rawContent, fmt.Errorf("unmarshal results: %w", err)
	}

	c.log.Info("analyze.ok",
		"req_id", rid,
		"categories", len(set),
		"values", set.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return set, cleaned, nil
}

func (c *OpenAIClient) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func buildSystemPrompt(req Request) string {
	var catLine string
	if len(req.AllowedCategories) > 0 {
		catLine = "Allowed category names (enum): " + strings.Join(req.AllowedCategories, ", ") + ". "
	} else {
		catLine = "Category names must be short, sensible panel labels. "
	}
	parts := []string{
		"You are a laboratory report parser. Return ONLY JSON that matches the JSON Schema provided.",
		"The output is an object keyed by exam category; each category maps test names to result values.",
		catLine,
		"Keep units inside the value string exactly as printed (e.g. \"2.1 uUI/mL\").",
		"Only include tests whose values actually appear in the text. Never invent values.",
		"If the document holds no laboratory results at all, return an empty object {}.",
		"Never output null. If a value is unreadable, omit the test.",
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		parts = append(parts, "The document language is "+lang+"; keep test names in that language.")
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(req.FilenameHint)
	b.WriteString("\n\nDocument text (first ~6k chars):\n")
	if len(req.Text) > 6000 {
		b.WriteString(req.Text[:6000])
	} else {
		b.WriteString(req.Text)
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
