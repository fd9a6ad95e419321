package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"kalshigw/internal/models"
	"kalshigw/pkg/crypto"
	"kalshigw/pkg/ratelimit"
	"kalshigw/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RESTConfig - настройки HTTP транспорта
type RESTConfig struct {
	BaseURL   string
	KeyID     string        // идентификатор API ключа для заголовка
	Timeout   time.Duration // общий таймаут операции
	RateLimit float64       // запросов в секунду
	RateBurst float64
}

// REST доставляет ордерные операции через HTTP торговый API.
// Каждый запрос подписывается RSA-PSS ключом оператора.
// Всегда доступен: постоянного соединения нет, каждый вызов самостоятелен.
type REST struct {
	cfg     RESTConfig
	client  *http.Client
	signer  *crypto.Signer
	limiter *ratelimit.Limiter
}

// NewREST создаёт HTTP транспорт. При signer == nil запросы уходят
// без подписи и заголовков аутентификации.
func NewREST(cfg RESTConfig, signer *crypto.Signer) *REST {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	// Пул соединений под торговый трафик: немного хостов, много запросов
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}
	return &REST{
		cfg:     cfg,
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		signer:  signer,
		limiter: ratelimit.New(cfg.RateLimit, cfg.RateBurst),
	}
}

// orderEnvelope - конверт ответов торгового API
type orderEnvelope struct {
	Order *models.Order `json:"order"`
}

// CreateOrder создаёт ордер POST запросом.
// Не повторяется при сбое: создание не идемпотентно без подтверждённого
// client_order_id на стороне биржи.
func (r *REST) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var env orderEnvelope
	if err := r.call(ctx, "create", http.MethodPost, "/portfolio/orders", req, &env); err != nil {
		return nil, err
	}
	return env.Order, nil
}

// CancelOrder отменяет ордер DELETE запросом. Отмена идемпотентна,
// транспортные сбои повторяются с backoff.
func (r *REST) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var env orderEnvelope
	err := r.withRetry(ctx, func() error {
		return r.call(ctx, "cancel", http.MethodDelete, "/portfolio/orders/"+orderID, nil, &env)
	})
	if err != nil {
		return nil, err
	}
	return env.Order, nil
}

// CancelOrders отменяет пакет одним атомарным запросом (максимум 20):
// сбой запроса валит весь пакет
func (r *REST) CancelOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	req := &models.BatchCancelRequest{OrderIDs: orderIDs}
	if err := req.Validate(); err != nil {
		return err
	}
	return r.call(ctx, "batch-cancel", http.MethodDelete, "/portfolio/orders/batched", req, nil)
}

// AmendOrder изменяет ордер POST запросом
func (r *REST) AmendOrder(ctx context.Context, orderID string, req *models.AmendOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var env orderEnvelope
	err := r.withRetry(ctx, func() error {
		return r.call(ctx, "amend", http.MethodPost, "/portfolio/orders/"+orderID+"/amend", req, &env)
	})
	if err != nil {
		return nil, err
	}
	return env.Order, nil
}

// IsAvailable: HTTP транспорт доступен по определению
func (r *REST) IsAvailable() bool {
	return true
}

// Type возвращает протокол транспорта
func (r *REST) Type() Type {
	return TypeREST
}

func (r *REST) withRetry(ctx context.Context, op func() error) error {
	cfg := retry.HTTPConfig()
	// Повторяем только транспортные сбои; отказы биржи терминальны
	cfg.RetryIf = func(err error) bool {
		return errors.Is(err, ErrUnavailable)
	}
	return retry.Do(ctx, op, cfg)
}

// call выполняет подписанный HTTP запрос и переводит исход в таксономию
func (r *REST) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return NewError(TypeREST, op, ErrInterrupted, "rate limiter wait canceled", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewError(TypeREST, op, ErrUnavailable, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return NewError(TypeREST, op, ErrUnavailable, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := r.sign(httpReq, method, path); err != nil {
		return NewError(TypeREST, op, ErrUnavailable, "sign request", err)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		restRequestsTotal.WithLabelValues(op, "network_error").Inc()
		if ctx.Err() != nil {
			return NewError(TypeREST, op, ErrInterrupted, "request canceled", err)
		}
		return NewError(TypeREST, op, ErrUnavailable, "http request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		restRequestsTotal.WithLabelValues(op, "read_error").Inc()
		return NewError(TypeREST, op, ErrUnavailable, "read response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		restRequestsTotal.WithLabelValues(op, "ok").Inc()
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return NewError(TypeREST, op, ErrUnavailable, "decode response", err)
			}
		}
		return nil
	}

	restRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	return r.statusError(op, resp.StatusCode, data)
}

// statusError переводит HTTP статус в таксономию транспорта
func (r *REST) statusError(op string, status int, body []byte) error {
	reason := apiErrorMessage(body)
	switch {
	case status == http.StatusNotFound:
		return NewError(TypeREST, op, ErrUnknownOrder, reason, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		// Перегрузка и серверные сбои восстановимы
		return NewError(TypeREST, op, ErrUnavailable, fmt.Sprintf("status %d: %s", status, reason), nil)
	default:
		// Остальные 4xx - биржа отказала по смыслу запроса
		return NewError(TypeREST, op, ErrRejected, reason, nil)
	}
}

// apiErrorMessage достаёт текст ошибки из тела ответа API
func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		if e.Error.Code != "" {
			return e.Error.Code + ": " + e.Error.Message
		}
		return e.Error.Message
	}
	if len(body) > 0 {
		return string(body)
	}
	return "Unknown rejection"
}

// sign добавляет заголовки аутентификации: timestamp, key id и
// RSA-PSS подпись строки timestamp+method+"/trade-api/v2"+path
func (r *REST) sign(req *http.Request, method, path string) error {
	if r.signer == nil {
		return nil
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature, err := r.signer.Sign(ts + method + "/trade-api/v2" + path)
	if err != nil {
		return err
	}
	req.Header.Set("KALSHI-ACCESS-KEY", r.cfg.KeyID)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	return nil
}
