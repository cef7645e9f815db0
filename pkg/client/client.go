// Package client — Go-клиент HTTP API витрины TechStore.
//
// Клиент хранит пару access/refresh токенов и при ответе 401 обновляет
// access-токен один раз на всех конкурентных вызывающих, после чего
// повторяет исходный запрос.
package client

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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout = 15 * time.Second
	refreshPath    = "/auth/refresh"
	refreshKey     = "refresh"

	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// ErrSessionExpired возвращается, когда обновить access-токен не удалось.
var ErrSessionExpired = errors.New("session expired")

// APIError — ответ API с success=false.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("api error %d: %s (%s)", e.StatusCode, e.Message, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// StatusCode извлекает HTTP-статус из ошибки клиента, 0 — если это не APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *Meta           `json:"meta"`
	Errors  []string        `json:"errors"`
}

// tokenState — текущая пара токенов клиента.
type tokenState struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

func (t *tokenState) get() (access, refresh string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.access, t.refresh
}

func (t *tokenState) set(access, refresh string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access = access
	if refresh != "" {
		t.refresh = refresh
	}
}

func (t *tokenState) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.access, t.refresh = "", ""
}

// Client вызывает /api/v1 витрины.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *tokenState
	flight  singleflight.Group
	logger  *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (таймауты, транспорт).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokens задаёт уже выданные токены.
func WithTokens(access, refresh string) Option {
	return func(c *Client) {
		c.tokens.set(access, refresh)
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New создаёт клиент. baseURL указывает на корень версии API,
// например http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  &tokenState{},
		logger:  log.WithField("component", "storefront-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens возвращает текущие токены.
func (c *Client) Tokens() (access, refresh string) {
	return c.tokens.get()
}

// call — параметры одного запроса.
type call struct {
	method         string
	path           string
	query          url.Values
	body           any
	idempotencyKey string
	anonymous      bool
}

// result — разобранный успешный ответ.
type result struct {
	status   int
	meta     *Meta
	replayed bool
}

// do выполняет запрос; при 401 обновляет токен и повторяет ровно один раз.
func (c *Client) do(ctx context.Context, req call, out any) (result, error) {
	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return result{}, fmt.Errorf("encode request body: %w", err)
		}
	}

	access, _ := c.tokens.get()
	res, err := c.send(ctx, req, payload, access, out)
	if req.anonymous || StatusCode(err) != http.StatusUnauthorized {
		return res, err
	}

	fresh, refreshErr := c.refreshAccess(ctx, access)
	if refreshErr != nil {
		return res, refreshErr
	}
	return c.send(ctx, req, payload, fresh, out)
}

func (c *Client) send(ctx context.Context, req call, payload []byte, access string, out any) (result, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return result{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if access != "" && !req.anonymous {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.idempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return result{}, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return result{status: resp.StatusCode}, fmt.Errorf("decode %s %s response (status %d): %w", req.method, req.path, resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return result{status: resp.StatusCode}, &APIError{StatusCode: resp.StatusCode, Message: env.Message, Errors: env.Errors}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return result{status: resp.StatusCode}, fmt.Errorf("decode %s %s data: %w", req.method, req.path, err)
		}
	}
	return result{
		status:   resp.StatusCode,
		meta:     env.Meta,
		replayed: resp.Header.Get(headerReplayed) == "true",
	}, nil
}

// refreshAccess обновляет access-токен. Конкурентные вызовы ждут одного
// запроса к /auth/refresh. Если токен уже сменился после stale, новый
// запрос не отправляется.
func (c *Client) refreshAccess(ctx context.Context, stale string) (string, error) {
	if current, _ := c.tokens.get(); current != "" && current != stale {
		return current, nil
	}

	v, err, shared := c.flight.Do(refreshKey, func() (any, error) {
		if current, _ := c.tokens.get(); current != "" && current != stale {
			return current, nil
		}
		_, refresh := c.tokens.get()
		if refresh == "" {
			return "", ErrSessionExpired
		}

		payload, err := json.Marshal(map[string]string{"refreshToken": refresh})
		if err != nil {
			return "", fmt.Errorf("encode refresh request: %w", err)
		}

		var data struct {
			AccessToken string `json:"accessToken"`
		}
		// Отмена контекста одного вызывающего не должна обрывать общий refresh.
		refreshCtx := context.WithoutCancel(ctx)
		refreshCall := call{method: http.MethodPost, path: refreshPath, anonymous: true}
		if _, err := c.send(refreshCtx, refreshCall, payload, "", &data); err != nil {
			c.tokens.clear()
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		if data.AccessToken == "" {
			c.tokens.clear()
			return "", ErrSessionExpired
		}

		c.tokens.set(data.AccessToken, "")
		c.logger.Debug("access token refreshed")
		return data.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.Debug("joined in-flight token refresh")
	}
	return v.(string), nil
}

// Register создаёт пользователя и сохраняет выданные токены.
func (c *Client) Register(ctx context.Context, in RegisterInput) (Session, error) {
	var session Session
	if _, err := c.do(ctx, call{method: http.MethodPost, path: "/auth/register", body: in, anonymous: true}, &session); err != nil {
		return Session{}, err
	}
	c.tokens.set(session.AccessToken, session.RefreshToken)
	return session, nil
}

// Login входит по email и паролю и сохраняет токены.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var session Session
	body := map[string]string{"email": email, "password": password}
	if _, err := c.do(ctx, call{method: http.MethodPost, path: "/auth/login", body: body, anonymous: true}, &session); err != nil {
		return Session{}, err
	}
	c.tokens.set(session.AccessToken, session.RefreshToken)
	return session, nil
}

// Logout подтверждает выход на сервере и забывает токены.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/auth/logout"}, nil)
	c.tokens.clear()
	return err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me"}, &user)
	return user, err
}

// ListProducts возвращает страницу активных товаров.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]Product, Meta, error) {
	values := url.Values{}
	setQuery(values, "search", q.Search)
	setQuery(values, "categoria", q.Category)
	setQuery(values, "marca", q.Brand)
	setQuery(values, "ordenar", q.Sort)
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}

	var products []Product
	res, err := c.do(ctx, call{method: http.MethodGet, path: "/products", query: values, anonymous: true}, &products)
	if err != nil {
		return nil, Meta{}, err
	}
	var meta Meta
	if res.meta != nil {
		meta = *res.meta
	}
	return products, meta, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	var product Product
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/products/" + url.PathEscape(id), anonymous: true}, &product)
	return product, err
}

// CreateProduct требует роли admin.
func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var product Product
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/products", body: in}, &product)
	return product, err
}

func (c *Client) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	var product Product
	_, err := c.do(ctx, call{method: http.MethodPut, path: "/products/" + url.PathEscape(id), body: patch}, &product)
	return product, err
}

// PlaceOrder оформляет заказ. Непустой idempotencyKey передаётся в
// заголовке Idempotency-Key; replayed сообщает, что ответ повторён сервером.
func (c *Client) PlaceOrder(ctx context.Context, in PlaceOrderInput, idempotencyKey string) (order Order, replayed bool, err error) {
	res, err := c.do(ctx, call{
		method:         http.MethodPost,
		path:           "/orders",
		body:           in,
		idempotencyKey: idempotencyKey,
	}, &order)
	if err != nil {
		return Order{}, false, err
	}
	return order, res.replayed, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var order Order
	_, err := c.do(ctx, call{method: http.MethodGet, path: "/orders/" + url.PathEscape(id)}, &order)
	return order, err
}

// MyOrders — заказы текущего пользователя, новые первыми.
func (c *Client) MyOrders(ctx context.Context, page, limit int) ([]Order, Meta, error) {
	values := url.Values{}
	if page > 0 {
		values.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}

	var orders []Order
	res, err := c.do(ctx, call{method: http.MethodGet, path: "/orders/me", query: values}, &orders)
	if err != nil {
		return nil, Meta{}, err
	}
	var meta Meta
	if res.meta != nil {
		meta = *res.meta
	}
	return orders, meta, nil
}

// PayOrder регистрирует оплату заказа.
func (c *Client) PayOrder(ctx context.Context, id, transactionID string) (Order, error) {
	var order Order
	var body any
	if transactionID != "" {
		body = map[string]string{"transaccionId": transactionID}
	}
	_, err := c.do(ctx, call{method: http.MethodPatch, path: "/orders/" + url.PathEscape(id) + "/pay", body: body}, &order)
	return order, err
}

// UpdateOrderStatus меняет статус заказа (admin).
func (c *Client) UpdateOrderStatus(ctx context.Context, id, status, note string) (Order, error) {
	var order Order
	body := map[string]string{"estado": status}
	if note != "" {
		body["nota"] = note
	}
	_, err := c.do(ctx, call{method: http.MethodPatch, path: "/orders/" + url.PathEscape(id) + "/status", body: body}, &order)
	return order, err
}

func setQuery(values url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		values.Set(key, value)
	}
}
