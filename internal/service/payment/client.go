package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultRequestTimeout = 10 * time.Second

	headerIdempotencyKey = "Idempotency-Key"
)

// RetryConfig — параметры повторов для создания intent.
// Повторяется только CreateIntent: шлюз дедуплицирует по idempotency key,
// поэтому повтор безопасен. Confirm не повторяется никогда.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// Client — HTTP-адаптер внешнего платёжного шлюза.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
	logger     *log.Entry
}

// NewClient создаёт клиент шлюза.
func NewClient(baseURL, apiKey string, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		retry:      DefaultRetryConfig(),
		logger:     logger,
	}
}

// WithRetryConfig перенастраивает повторы создания intent.
func (c *Client) WithRetryConfig(cfg RetryConfig) *Client {
	if cfg.MaxAttempts > 0 {
		c.retry = cfg
	}
	return c
}

type createIntentRequest struct {
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

type createIntentResponse struct {
	IntentRef    string `json:"intent_ref"`
	ClientSecret string `json:"client_secret"`
}

type confirmRequest struct {
	IntentRef            string                      `json:"intent_ref"`
	PaymentMethodDetails domain.PaymentMethodDetails `json:"payment_method_details"`
}

type confirmResponse struct {
	Outcome       string `json:"outcome"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type gatewayError struct {
	Message string `json:"message"`
}

// CreateIntent создаёт платёжное намерение. Транзиентные сбои повторяются
// с тем же idempotency key; терминальная неудача — ErrGatewayUnavailable.
func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency, idempotencyKey string) (domain.PaymentIntent, error) {
	if amountMinor <= 0 {
		return domain.PaymentIntent{}, domain.ErrPriceInvalid
	}
	if currency == "" {
		return domain.PaymentIntent{}, domain.ErrCurrencyRequired
	}

	body := createIntentRequest{
		AmountMinor:    amountMinor,
		Currency:       currency,
		IdempotencyKey: idempotencyKey,
	}

	var lastErr error
	delay := c.retry.InitialDelay
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		var resp createIntentResponse
		err := c.post(ctx, "/v1/payment_intents", idempotencyKey, body, &resp)
		if err == nil {
			if attempt > 1 {
				c.logger.WithFields(log.Fields{
					"idempotency_key": idempotencyKey,
					"attempt":         attempt,
				}).Info("create intent succeeded after retry")
			}
			return domain.PaymentIntent{Ref: resp.IntentRef, ClientSecret: resp.ClientSecret}, nil
		}

		lastErr = err
		if !domain.IsRetryable(err) || attempt >= c.retry.MaxAttempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": idempotencyKey,
			"attempt":         attempt,
			"delay":           delay,
		}).Warn("create intent failed, retrying")

		select {
		case <-ctx.Done():
			return domain.PaymentIntent{}, fmt.Errorf("create intent: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	return domain.PaymentIntent{}, fmt.Errorf("create intent: %w", lastErr)
}

// Confirm отправляет подтверждение. Ровно один вызов на запрос: повтор
// подтверждения — только явное действие пользователя выше по стеку.
func (c *Client) Confirm(ctx context.Context, intentRef string, details domain.PaymentMethodDetails) (domain.ConfirmationOutcome, error) {
	var resp confirmResponse
	if err := c.post(ctx, "/v1/payment_intents/confirm", "", confirmRequest{IntentRef: intentRef, PaymentMethodDetails: details}, &resp); err != nil {
		return "", fmt.Errorf("confirm intent: %w", err)
	}

	outcome := domain.ConfirmationOutcome(resp.Outcome)
	if !outcome.Valid() {
		return "", fmt.Errorf("%w: unknown confirmation outcome %q", domain.ErrGatewayRejected, resp.Outcome)
	}

	if resp.FailureReason != "" {
		c.logger.WithFields(log.Fields{
			"intent_ref": intentRef,
			"outcome":    outcome,
			"reason":     resp.FailureReason,
		}).Info("confirmation finished with failure reason")
	}

	return outcome, nil
}

// post выполняет JSON POST и раскладывает ошибки по таксономии:
// транспорт/5xx — ErrGatewayUnavailable, 4xx — ErrGatewayRejected.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var gwErr gatewayError
		_ = json.Unmarshal(raw, &gwErr)
		if gwErr.Message == "" {
			gwErr.Message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", domain.ErrGatewayRejected, gwErr.Message)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrGatewayRejected, err)
	}
	return nil
}

var _ domain.PaymentGateway = (*Client)(nil)
