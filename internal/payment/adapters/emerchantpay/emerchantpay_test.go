package emerchantpay

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{
		"username":       "user",
		"password":       "secret",
		"terminal_token": "term-1",
		"wpf_url":        serverURL + "/wpf",
		"gateway_url":    serverURL + "/process",
	}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter.(*Adapter)
}

func TestInitiateSinglePurchase(t *testing.T) {
	var got wpfPaymentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "user" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = xml.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`<wpf_payment><status>new</status><unique_id>wpf-1</unique_id><redirect_url>https://wpf.example/p/wpf-1</redirect_url></wpf_payment>`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	result, err := adapter.InitiateSinglePurchase(context.Background(), paymentdomain.CheckoutRequest{
		TransactionID:   7,
		OrderNumber:     "CP0000000001",
		Amount:          decimal.RequireFromString("12.34"),
		NotificationURL: "https://api.example/webhooks/emerchantpay",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if result.PaymentToken != "wpf-1" || result.PaymentURL != "https://wpf.example/p/wpf-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got.Amount != 1234 || got.TransactionID != "7" || len(got.TransactionTypes) != 1 || got.TransactionTypes[0].Name != typeSale {
		t.Fatalf("unexpected request %+v", got)
	}

	_, err = adapter.InitiateSinglePurchase(context.Background(), paymentdomain.CheckoutRequest{TransactionID: 7})
	if !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected missing notification url to fail, got %v", err)
	}
}

func TestInitiateGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	_, err := adapter.InitiateSubscription(context.Background(), paymentdomain.CheckoutRequest{
		TransactionID:   8,
		Amount:          decimal.NewFromInt(10),
		NotificationURL: "https://api.example/webhooks/emerchantpay",
	})
	if !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestVerifyParseAndAcknowledge(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t, "http://unused")

	sum := sha1.Sum([]byte("wpf-1" + "secret"))
	form := url.Values{
		"wpf_unique_id":                 {"wpf-1"},
		"wpf_status":                    {"approved"},
		"wpf_transaction_id":            {"7"},
		"payment_transaction_unique_id": {"pt-1"},
		"payment_transaction_amount":    {"1234"},
		"signature":                     {hex.EncodeToString(sum[:])},
	}
	req := paymentdomain.InboundRequest{Form: form}

	if err := adapter.Verify(ctx, req); err != nil {
		t.Fatalf("verify: %v", err)
	}
	event, err := adapter.Parse(ctx, req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.TransactionID != 7 || event.PaymentToken != "wpf-1" || event.SubscriptionRef != "pt-1" {
		t.Fatalf("unexpected event %+v", event)
	}
	if !event.BilledAmount.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("unexpected amount %s", event.BilledAmount)
	}

	contentType, body := adapter.Acknowledge(req)
	if contentType != "text/xml" || !strings.Contains(string(body), "<wpf_unique_id>wpf-1</wpf_unique_id>") {
		t.Fatalf("unexpected ack %s %s", contentType, body)
	}

	form.Set("signature", "deadbeef")
	if err := adapter.Verify(ctx, req); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	form.Set("wpf_status", "declined")
	if _, err := adapter.Parse(ctx, req); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored declined notification, got %v", err)
	}
}

func TestQueryStatusAndRecurring(t *testing.T) {
	var recurring recurringSaleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wpf/reconcile":
			_, _ = w.Write([]byte(`<wpf_payment><status>approved</status><unique_id>wpf-1</unique_id></wpf_payment>`))
		case "/process/term-1":
			body, _ := io.ReadAll(r.Body)
			_ = xml.Unmarshal(body, &recurring)
			_, _ = w.Write([]byte(`<payment_response><status>approved</status><unique_id>rs-1</unique_id></payment_response>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	status, raw, err := adapter.QueryStatus(context.Background(), "wpf-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != paymentdomain.RemoteStatusApproved || len(raw) == 0 {
		t.Fatalf("unexpected status %s", status)
	}

	result, err := adapter.ChargeRecurring(context.Background(), paymentdomain.RecurringCharge{
		TransactionID:   9,
		SubscriptionRef: "pt-1",
		Amount:          decimal.RequireFromString("9.99"),
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if result.Status != paymentdomain.RemoteStatusApproved || result.PaymentToken != "rs-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if recurring.ReferenceID != "pt-1" || recurring.Amount != 999 || recurring.Currency != "USD" {
		t.Fatalf("unexpected recurring request %+v", recurring)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]paymentdomain.RemoteStatus{
		"approved":      paymentdomain.RemoteStatusApproved,
		"DECLINED":      paymentdomain.RemoteStatusDeclined,
		"timeout":       paymentdomain.RemoteStatusDeclined,
		"new":           paymentdomain.RemoteStatusPending,
		"pending_async": paymentdomain.RemoteStatusPending,
	}
	for in, want := range cases {
		if got := MapStatus(in); got != want {
			t.Fatalf("MapStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
