package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "sk_test_key", log.New().WithField("test", t.Name())).WithRetryConfig(fastRetry())
	return client, srv
}

func TestCreateIntent_Success(t *testing.T) {
	var gotKey atomic.Value
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey.Store(r.Header.Get("Idempotency-Key"))

		var req createIntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.AmountMinor != 1999 || req.Currency != "USD" {
			t.Errorf("unexpected request body: %+v", req)
		}

		_ = json.NewEncoder(w).Encode(createIntentResponse{IntentRef: "pi_1", ClientSecret: "pi_1_secret"})
	}))

	intent, err := client.CreateIntent(context.Background(), 1999, "USD", "key-1")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Ref != "pi_1" || intent.ClientSecret != "pi_1_secret" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if gotKey.Load() != "key-1" {
		t.Fatalf("idempotency key header missing, got %v", gotKey.Load())
	}
}

func TestCreateIntent_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(createIntentResponse{IntentRef: "pi_1", ClientSecret: "s"})
	}))

	intent, err := client.CreateIntent(context.Background(), 500, "USD", "key-1")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if intent.Ref != "pi_1" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCreateIntent_GatewayRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(gatewayError{Message: "amount too small"})
	}))

	_, err := client.CreateIntent(context.Background(), 1, "USD", "key-1")
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Fatalf("expected gateway rejection, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("rejection must not be retried, got %d attempts", calls.Load())
	}
}

func TestCreateIntent_NetworkErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // соединение будет отвергнуто

	client := NewClient(srv.URL, "", log.New().WithField("test", t.Name())).WithRetryConfig(fastRetry())
	_, err := client.CreateIntent(context.Background(), 500, "USD", "key-1")
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
}

func TestCreateIntent_ValidatesInput(t *testing.T) {
	client := NewClient("http://unused", "", log.New().WithField("test", t.Name()))

	if _, err := client.CreateIntent(context.Background(), 0, "USD", "k"); !errors.Is(err, domain.ErrPriceInvalid) {
		t.Fatalf("expected price error, got %v", err)
	}
	if _, err := client.CreateIntent(context.Background(), 100, "", "k"); !errors.Is(err, domain.ErrCurrencyRequired) {
		t.Fatalf("expected currency error, got %v", err)
	}
}

func TestConfirm_Outcomes(t *testing.T) {
	cases := []struct {
		outcome string
		want    domain.ConfirmationOutcome
	}{
		{"succeeded", domain.OutcomeSucceeded},
		{"requires_action", domain.OutcomeRequiresAction},
		{"declined", domain.OutcomeDeclined},
		{"cancelled", domain.OutcomeCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.outcome, func(t *testing.T) {
			client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req confirmRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("decode confirm request: %v", err)
				}
				if req.IntentRef != "pi_1" {
					t.Errorf("unexpected intent ref %q", req.IntentRef)
				}
				_ = json.NewEncoder(w).Encode(confirmResponse{Outcome: tc.outcome})
			}))

			outcome, err := client.Confirm(context.Background(), "pi_1", domain.PaymentMethodDetails{"card": "tok"})
			if err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if outcome != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, outcome)
			}
		})
	}
}

func TestConfirm_NeverRetries(t *testing.T) {
	var calls atomic.Int32
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Confirm(context.Background(), "pi_1", nil)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("confirm must be sent exactly once, got %d", calls.Load())
	}
}

func TestConfirm_UnknownOutcome(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(confirmResponse{Outcome: "exploded"})
	}))

	if _, err := client.Confirm(context.Background(), "pi_1", nil); !errors.Is(err, domain.ErrGatewayRejected) {
		t.Fatalf("expected rejection for unknown outcome, got %v", err)
	}
}
