// Package backend is the REST client for the catalog and transaction
// services of the POS backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/pkg/circuitbreaker"
)

const maxErrorBody = 4 << 10

// ErrEmptyTransaction is a 2xx answer that carries no transaction record.
var ErrEmptyTransaction = errors.New("response carries no transaction")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend responded %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// envelope is the common response wrapper. Status is left raw because the
// backend has sent it both as a boolean and as the HTTP status number.
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Status  json.RawMessage `json:"status,omitempty"`
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient talks to baseURL through a traced transport behind a circuit
// breaker shared by every call of this client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	transport := circuitbreaker.NewTransport(otelhttp.NewTransport(http.DefaultTransport), circuitbreaker.Settings{
		Name:   "pos-backend",
		Logger: zap.L().Named("backend"),
	})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (c *Client) ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.ProductSnapshot, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(q.Page, 1)))
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.CategoryID != "" {
		params.Set("categoryId", q.CategoryID)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	var products []domain.ProductSnapshot
	if err := c.getList(ctx, "/products", params, &products); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (c *Client) ListCategories(ctx context.Context, page, pageSize int) ([]domain.Category, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(page, 1)))
	if pageSize > 0 {
		params.Set("pageSize", strconv.Itoa(pageSize))
	}

	var categories []domain.Category
	if err := c.getList(ctx, "/categories", params, &categories); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// CreateTransaction posts the sale. The idempotency key, when set, is sent
// as the Idempotency-Key header so a retried submit is not booked twice.
func (c *Client) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/transactions", nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var tx domain.Transaction
	if err := c.do(httpReq, &tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("create transaction: %w", ErrEmptyTransaction)
	}
	return &tx, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var tx domain.Transaction
	if err := c.do(httpReq, &tx); err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("get transaction %s: %w", id, ErrEmptyTransaction)
	}
	return &tx, nil
}

// getList decodes list endpoints, whose data is either the array itself or
// a page object carrying it under "items".
func (c *Client) getList(ctx context.Context, path string, params url.Values, out any) error {
	httpReq, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}

	var raw json.RawMessage
	if err := c.do(httpReq, &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '{' {
		var page struct {
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("decode page: %w", err)
		}
		raw = page.Items
		if len(raw) == 0 {
			return nil
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = env.Data
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		apiErr.Message = env.Message
		apiErr.Code = env.Code
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
