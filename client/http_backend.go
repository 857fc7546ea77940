// Package client talks to a remote annotation server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/services"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// HTTPBackend loads seeds from and saves changesets to a remote server's
// upload API.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

var (
	_ annotation.Persister = (*HTTPBackend)(nil)
	_ services.SeedSource  = (*HTTPBackend)(nil)
)

// NewHTTPBackend returns a backend for the server at baseURL.
func NewHTTPBackend(baseURL string, timeout time.Duration, log *slog.Logger) (*HTTPBackend, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote url %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPBackend{
		baseURL: u.String(),
		client:  &http.Client{Timeout: timeout},
		log:     log.With("component", "http_backend", "remote", u.Host),
	}, nil
}

// LoadSeed fetches GET /api/uploads/{id}/detections.
func (b *HTTPBackend) LoadSeed(ctx context.Context, uploadID string) (annotation.Seed, error) {
	var seed annotation.Seed
	err := b.do(ctx, http.MethodGet, b.uploadURL(uploadID, "detections"), nil, &seed)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return annotation.Seed{}, fmt.Errorf("%w: %s", services.ErrUploadNotFound, uploadID)
		}
		return annotation.Seed{}, err
	}
	return seed, nil
}

// SaveChangeset posts cs to POST /api/uploads/{id}/changeset.
func (b *HTTPBackend) SaveChangeset(ctx context.Context, uploadID string, cs annotation.Changeset) (annotation.SaveResult, error) {
	body, err := json.Marshal(cs)
	if err != nil {
		return annotation.SaveResult{}, fmt.Errorf("failed to encode changeset: %w", err)
	}
	var res annotation.SaveResult
	if err := b.do(ctx, http.MethodPost, b.uploadURL(uploadID, "changeset"), body, &res); err != nil {
		return annotation.SaveResult{}, err
	}
	b.log.Debug("changeset accepted", "upload_id", uploadID, "created", res.Created, "updated", res.Updated, "deleted", res.Deleted)
	return res, nil
}

func (b *HTTPBackend) uploadURL(uploadID, resource string) string {
	return b.baseURL + "/api/uploads/" + url.PathEscape(uploadID) + "/" + resource
}

func (b *HTTPBackend) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}

// decodeAPIError reads the server's {"errors":[...]} envelope, falling back
// to the raw body.
func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var envelope struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Errors) > 0 {
		apiErr.Code = envelope.Errors[0].Code
		apiErr.Detail = envelope.Errors[0].Detail
		return apiErr
	}
	apiErr.Detail = strings.TrimSpace(string(raw))
	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
