package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront-backend/dtos"
	"storefront-backend/models"
)

const DefaultTimeout = 10 * time.Second

var ErrNoToken = errors.New("no authentication token")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// APIClient calls the storefront backend. The bearer token is kept after a
// successful Register or Login.
type APIClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *APIClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *APIClient) Register(ctx context.Context, name, email, password string) (dtos.AuthResponse, error) {
	var resp dtos.AuthResponse
	body := dtos.RegisterRequest{Name: name, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", body, &resp, false); err != nil {
		return resp, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

func (c *APIClient) Login(ctx context.Context, email, password string) (dtos.AuthResponse, error) {
	var resp dtos.AuthResponse
	body := dtos.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp, false); err != nil {
		return resp, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

func (c *APIClient) Products(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := c.do(ctx, http.MethodGet, "/api/products", nil, &products, false)
	return products, err
}

func (c *APIClient) GetCart(ctx context.Context) ([]LineItem, error) {
	var items []LineItem
	err := c.do(ctx, http.MethodGet, "/api/cart", nil, &items, true)
	return items, err
}

func (c *APIClient) PatchCart(ctx context.Context, patch dtos.CartPatchRequest) (dtos.CartView, error) {
	var view dtos.CartView
	err := c.do(ctx, http.MethodPatch, "/api/cart", patch, &view, true)
	return view, err
}

func (c *APIClient) ReplaceCart(ctx context.Context, items []LineItem, seq int64) (dtos.CartView, error) {
	var view dtos.CartView
	body := dtos.CartReplaceRequest{Cart: items, Seq: seq}
	if body.Cart == nil {
		body.Cart = []LineItem{}
	}
	err := c.do(ctx, http.MethodPut, "/api/cart", body, &view, true)
	return view, err
}

func (c *APIClient) SubmitOrder(ctx context.Context) (models.Order, error) {
	var order models.Order
	err := c.do(ctx, http.MethodPost, "/api/order", struct{}{}, &order, true)
	return order, err
}

func (c *APIClient) OrderHistory(ctx context.Context) ([]dtos.OrderSummary, error) {
	var history []dtos.OrderSummary
	err := c.do(ctx, http.MethodGet, "/api/order/history", nil, &history, true)
	return history, err
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	var token string
	if auth {
		if token = c.Token(); token == "" {
			return ErrNoToken
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
