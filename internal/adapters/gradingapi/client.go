// Package gradingapi talks to the grading server's JSON API.
package gradingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/csg33k/response-viewer/internal/domain"
	"github.com/csg33k/response-viewer/internal/ports"
)

const maxBody = 32 << 20

var _ ports.GradingAPI = (*Client)(nil)

// Client implements ports.GradingAPI over HTTP.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// New returns a client for the server at baseURL. A zero timeout leaves
// requests bounded only by their context.
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

func (c *Client) Reload(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/reload", nil)
	return err
}

func (c *Client) Info(ctx context.Context) (*domain.ResponseInfo, error) {
	return c.info(ctx, http.MethodGet, "/api/info", nil)
}

func (c *Client) NextResponse(ctx context.Context) (*domain.ResponseInfo, error) {
	return c.info(ctx, http.MethodGet, "/api/nextResponse", nil)
}

func (c *Client) PreviousResponse(ctx context.Context) (*domain.ResponseInfo, error) {
	return c.info(ctx, http.MethodGet, "/api/previousResponse", nil)
}

func (c *Client) ResponseByIndex(ctx context.Context, index int) (*domain.ResponseInfo, error) {
	return c.info(ctx, http.MethodGet, "/api/response/index/"+strconv.Itoa(index), nil)
}

func (c *Client) ResponseByID(ctx context.Context, id int64) (*domain.ResponseInfo, error) {
	return c.info(ctx, http.MethodGet, "/api/response/id/"+strconv.FormatInt(id, 10), nil)
}

func (c *Client) SetActiveSet(ctx context.Context, ids []int64) (*domain.ResponseInfo, error) {
	if ids == nil {
		ids = []int64{}
	}
	return c.info(ctx, http.MethodPost, "/api/set_active_set", ids)
}

func (c *Client) History(ctx context.Context) (*domain.HistorySnapshot, error) {
	return c.history(ctx, http.MethodGet, "/api/history", nil)
}

func (c *Client) SetHTMLMode(ctx context.Context, mode domain.HTMLMode) (*domain.HistorySnapshot, error) {
	return c.history(ctx, http.MethodPost, "/api/striphtml", map[string]string{"value": string(mode)})
}

func (c *Client) NamesTree(ctx context.Context) (*domain.NamesTree, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/names_tree", nil)
	if err != nil {
		return nil, err
	}
	return decodeNamesTree(body)
}

func (c *Client) IDTree(ctx context.Context) (*domain.NamesTree, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/id_tree", nil)
	if err != nil {
		return nil, err
	}
	return decodeIDTree(body)
}

// StartRetrieval asks the server to fetch the given assignments. The
// response body carries nothing the viewer uses.
func (c *Client) StartRetrieval(ctx context.Context, apiKey string, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	_, err := c.do(ctx, http.MethodPost, "/api/start_retrieval", map[string]any{
		"API_KEY": apiKey,
		"ids":     ids,
	})
	return err
}

func (c *Client) Recheck(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/recheck", nil)
	if err != nil {
		return false, err
	}
	var out struct {
		Status bool `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("grading api: recheck: %w", err)
	}
	return out.Status, nil
}

func (c *Client) info(ctx context.Context, method, path string, in any) (*domain.ResponseInfo, error) {
	body, err := c.do(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	var w infoWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("grading api: %s: %w", path, err)
	}
	return w.toDomain(), nil
}

func (c *Client) history(ctx context.Context, method, path string, in any) (*domain.HistorySnapshot, error) {
	body, err := c.do(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	var w historyWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("grading api: %s: %w", path, err)
	}
	return w.toDomain()
}

// do sends one request and returns the body. Error payloads and failing
// status codes become *APIError.
func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("grading api: encode %s: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("grading api: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grading api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("grading api: read %s: %w", path, err)
	}
	c.log.Debug("grading api", "method", method, "path", path, "status", resp.StatusCode, "dur", time.Since(start))

	if msg, ok := payloadError(body); ok {
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode}
	}
	return body, nil
}

func payloadError(body []byte) (string, bool) {
	t := bytes.TrimSpace(body)
	if len(t) == 0 || t[0] != '{' {
		return "", false
	}
	var e struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(t, &e); err != nil || isNull(e.Error) {
		return "", false
	}
	return errorMessage(e.Error), true
}
