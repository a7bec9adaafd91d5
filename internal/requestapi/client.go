// Package requestapi is the client for the async check request backend.
package requestapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/digital-land/submit/internal/pkg/httpretry"
	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/results"
)

// Config holds the backend connection settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client is the async request API client
type Client struct {
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new request API client
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: timeout}, config.MaxRetries),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// doRequest sends a JSON request and returns the response body and headers.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, resp.Header, nil
}

// PostURLRequest creates a check_url request and returns its id.
func (c *Client) PostURLRequest(ctx context.Context, r URLRequest) (string, error) {
	return c.create(ctx, results.RequestParams{
		Type:       results.RequestTypeCheckURL,
		Dataset:    r.Dataset,
		Collection: r.Collection,
		URL:        r.URL,
		GeomType:   r.GeomType,
	})
}

// PostFileRequest creates a check_file request and returns its id.
func (c *Client) PostFileRequest(ctx context.Context, r FileRequest) (string, error) {
	return c.create(ctx, results.RequestParams{
		Type:             results.RequestTypeCheckFile,
		Dataset:          r.Dataset,
		Collection:       r.Collection,
		OriginalFilename: r.OriginalFilename,
		UploadedFilename: r.UploadedFilename,
		GeomType:         r.GeomType,
	})
}

func (c *Client) create(ctx context.Context, params results.RequestParams) (string, error) {
	body, _, err := c.doRequest(ctx, http.MethodPost, "/requests", createRequest{Params: params})
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", params.Type, err)
	}

	var created results.RequestData
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("failed to parse created request: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create %s request: response has no id", params.Type)
	}

	logger.Info("check request created", "request_id", created.ID, "type", params.Type, "dataset", params.Dataset)
	return created.ID, nil
}

// GetRequestData fetches the current state of a request.
func (c *Client) GetRequestData(ctx context.Context, id string) (*results.RequestData, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, "/requests/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}

	var data results.RequestData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse request %s: %w", id, err)
	}
	return &data, nil
}

// GetResponseDetails fetches one page of per-row results. log is the
// request's column-field log, taken from its RequestData.
func (c *Client) GetResponseDetails(ctx context.Context, id string, q DetailsQuery, log results.ColumnFieldLog) (*results.ResponseDetails, error) {
	params := url.Values{}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.JSONPath != "" {
		params.Set("jsonpath", q.JSONPath)
	}
	endpoint := "/requests/" + url.PathEscape(id) + "/response-details"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	body, header, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("get response details %s: %w", id, err)
	}

	var rows []results.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse response details %s: %w", id, err)
	}

	window := results.PageWindow{
		TotalResults: headerInt(header, headerTotalResults, len(rows)),
		Offset:       headerInt(header, headerOffset, q.Offset),
		Limit:        headerInt(header, headerLimit, q.Limit),
	}
	return results.NewResponseDetails(id, rows, log, window), nil
}

func headerInt(h http.Header, name string, fallback int) int {
	v := h.Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("invalid pagination header", "header", name, "value", v)
		return fallback
	}
	return n
}
