package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/ingest"
	"github.com/starford/ticketdesk/internal/models"
)

const maxBodySize = 32 << 20 // 32 MB

// IdempotencyHeader carries a fresh key on every write so servers can drop
// duplicate deliveries of a replayed change.
const IdempotencyHeader = "Idempotency-Key"

// HTTP is a REST gateway:
//
//	GET   {base}/tickets       list
//	PATCH {base}/tickets/{id}  partial update
//	GET   {base}/health        reachability
type HTTP struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTP creates a gateway rooted at baseURL. A non-empty token is sent as a
// bearer credential.
func NewHTTP(baseURL, token string, timeout time.Duration) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway: unsupported scheme: %s (only http/https)", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (h *HTTP) FetchAll(ctx context.Context) (any, error) {
	data, ct, err := h.do(ctx, http.MethodGet, "/tickets", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch all: %w", err)
	}
	v, err := ingest.Decode(data, formatFor(ct))
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch all: %w: %w", apperr.ErrGateway, err)
	}
	return v, nil
}

func (h *HTTP) UpdateOne(ctx context.Context, id string, patch models.Patch) (any, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode patch: %w", err)
	}
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set(IdempotencyHeader, uuid.NewString())

	data, ct, err := h.do(ctx, http.MethodPatch, "/tickets/"+url.PathEscape(id), bytes.NewReader(body), hdr)
	if err != nil {
		return nil, fmt.Errorf("gateway: update %s: %w", id, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{"id": id}, nil
	}
	v, err := ingest.Decode(data, formatFor(ct))
	if err != nil {
		return nil, fmt.Errorf("gateway: update %s: %w: %w", id, apperr.ErrGateway, err)
	}
	return v, nil
}

// Health succeeds when {base}/health answers with a 2xx status.
func (h *HTTP) Health(ctx context.Context) error {
	if _, _, err := h.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("gateway: health: %w", err)
	}
	return nil
}

// do performs one request. Transport failures and non-2xx statuses are
// reported as apperr.ErrGateway.
func (h *HTTP) do(ctx context.Context, method, path string, body io.Reader, hdr http.Header) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, body)
	if err != nil {
		return nil, "", err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", apperr.ErrGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %w", apperr.ErrGateway, err)
	}
	if len(data) > maxBodySize {
		return nil, "", fmt.Errorf("%w: body exceeds %d bytes", apperr.ErrGateway, maxBodySize)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, "", fmt.Errorf("%w: HTTP %d: %w", apperr.ErrGateway, resp.StatusCode, apperr.ErrNotFound)
		}
		return nil, "", fmt.Errorf("%w: HTTP %d", apperr.ErrGateway, resp.StatusCode)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func formatFor(contentType string) ingest.Format {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case strings.HasSuffix(ct, "yaml"):
		return ingest.FormatYAML
	case strings.HasSuffix(ct, "json"):
		return ingest.FormatJSON
	}
	return ingest.FormatAuto
}
