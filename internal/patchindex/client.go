// Package patchindex is the client of the external image-similarity service
// that indexes canonical patch images and searches for similar ones.
package patchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"patchdb/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Match is one similarity hit. Score is in [0,1].
type Match struct {
	ID    uint    `json:"id"`
	Score float64 `json:"score"`
}

// Client talks to the similarity service.
type Client interface {
	// Index adds or replaces the image of a canonical patch.
	Index(ctx context.Context, patchNumber uint, image []byte, filename string) error
	// Delete removes a patch from the index.
	Delete(ctx context.Context, patchNumber uint) error
	// Search returns ranked matches for an image.
	Search(ctx context.Context, image []byte, filename string) ([]Match, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type client struct {
	cfg  Config
	http *http.Client
}

// New returns an HTTP Client for the service at cfg.BaseURL.
func New(cfg Config) (Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("patch index base url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type envelope struct {
	Status  string  `json:"status"`
	Error   string  `json:"error,omitempty"`
	Matches []Match `json:"matches,omitempty"`
}

func (c *client) Index(ctx context.Context, patchNumber uint, image []byte, filename string) (err error) {
	start := time.Now()
	defer func() { observability.ObservePatchIndexCall("index", start, err) }()

	body, contentType, err := multipartBody(map[string]string{"id": strconv.FormatUint(uint64(patchNumber), 10)}, image, filename)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "index", http.MethodPost, "/index", body, contentType,
		attribute.Int64("patch.number", int64(patchNumber)))
	return err
}

func (c *client) Delete(ctx context.Context, patchNumber uint) (err error) {
	start := time.Now()
	defer func() { observability.ObservePatchIndexCall("delete", start, err) }()

	path := "/index/" + strconv.FormatUint(uint64(patchNumber), 10)
	_, err = c.do(ctx, "delete", http.MethodDelete, path, nil, "",
		attribute.Int64("patch.number", int64(patchNumber)))
	return err
}

func (c *client) Search(ctx context.Context, image []byte, filename string) (matches []Match, err error) {
	start := time.Now()
	defer func() { observability.ObservePatchIndexCall("search", start, err) }()

	body, contentType, err := multipartBody(nil, image, filename)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, "search", http.MethodPost, "/search", body, contentType)
	if err != nil {
		return nil, err
	}
	return env.Matches, nil
}

func (c *client) do(ctx context.Context, operation, method, path string, body io.Reader, contentType string, attrs ...attribute.KeyValue) (*envelope, error) {
	ctx, span := observability.GetTraceLayer().TraceExternalCall(ctx, "patch-index", operation)
	defer span.End()
	span.SetAttributes(attrs...)

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("patch index %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("patch index %s http %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(raw)))
		span.RecordError(err)
		return nil, err
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("patch index %s decode: %w", operation, err)
		}
	}
	if env.Status != "" && !strings.EqualFold(env.Status, "success") {
		msg := env.Error
		if msg == "" {
			msg = env.Status
		}
		err := fmt.Errorf("patch index %s failed: %s", operation, msg)
		span.RecordError(err)
		return nil, err
	}
	return &env, nil
}

func multipartBody(fields map[string]string, image []byte, filename string) (io.Reader, string, error) {
	if len(image) == 0 {
		return nil, "", fmt.Errorf("image required")
	}
	if filename == "" {
		filename = "image"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
