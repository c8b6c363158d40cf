package ccbill

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

func newAdapter(t *testing.T, enforce bool, extra map[string]any) *Adapter {
	t.Helper()
	cfg := map[string]any{
		"client_accnum": "900000",
		"client_subacc": "0001",
		"flexform_id":   "ff-123",
		"salt":          "pepper",
	}
	for k, v := range extra {
		cfg[k] = v
	}
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: cfg, EnforceAllowlist: enforce})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter.(*Adapter)
}

func TestInitiateSubscriptionDigest(t *testing.T) {
	adapter := newAdapter(t, false, nil)
	txnID := snowflake.ID(42)

	result, err := adapter.InitiateSubscription(context.Background(), paymentdomain.CheckoutRequest{
		TransactionID: txnID,
		Amount:        decimal.RequireFromString("9.99"),
		PeriodDays:    30,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	sum := md5.Sum([]byte("9.99" + "30" + "9.99" + "30" + "99" + "840" + "pepper"))
	want := hex.EncodeToString(sum[:])
	if result.PaymentToken != want {
		t.Fatalf("expected digest %s, got %s", want, result.PaymentToken)
	}

	parsed, err := url.Parse(result.PaymentURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Path != "/wap-frontflex/flexforms/ff-123" {
		t.Fatalf("unexpected path %s", parsed.Path)
	}
	q := parsed.Query()
	if q.Get("X-transactionId") != "42" || q.Get("clientSubacc") != "0001" || q.Get("formDigest") != want {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestVerifyAllowlist(t *testing.T) {
	ctx := context.Background()
	adapter := newAdapter(t, true, nil)

	if err := adapter.Verify(ctx, paymentdomain.InboundRequest{RemoteIP: "64.38.212.14"}); err != nil {
		t.Fatalf("expected allow-listed address to pass, got %v", err)
	}
	if err := adapter.Verify(ctx, paymentdomain.InboundRequest{RemoteIP: "10.1.1.1"}); !errors.Is(err, paymentdomain.ErrSourceNotAllowed) {
		t.Fatalf("expected source rejection, got %v", err)
	}

	open := newAdapter(t, false, nil)
	if err := open.Verify(ctx, paymentdomain.InboundRequest{RemoteIP: "10.1.1.1"}); err != nil {
		t.Fatalf("expected no check outside production, got %v", err)
	}

	custom := newAdapter(t, true, map[string]any{"allowed_ips": "127.0.0.1, 192.168.0.0/16"})
	if err := custom.Verify(ctx, paymentdomain.InboundRequest{RemoteIP: "192.168.4.2"}); err != nil {
		t.Fatalf("expected custom range to pass, got %v", err)
	}
}

func TestParseEvents(t *testing.T) {
	ctx := context.Background()
	adapter := newAdapter(t, false, nil)

	sale, err := adapter.Parse(ctx, paymentdomain.InboundRequest{
		Query: url.Values{"eventType": {"NewSaleSuccess"}},
		Body:  []byte(`{"X-transactionId":"77","subscriptionId":"sub-1","transactionId":"cc-9","billedInitialPrice":"9.99","timestamp":"2026-02-01 10:00:00"}`),
	})
	if err != nil {
		t.Fatalf("parse sale: %v", err)
	}
	if sale.Type != paymentdomain.EventTypeSale || sale.TransactionID != 77 || sale.SubscriptionRef != "sub-1" {
		t.Fatalf("unexpected sale event %+v", sale)
	}
	if sale.ProviderEventID != "NewSaleSuccess:cc-9" {
		t.Fatalf("unexpected event id %s", sale.ProviderEventID)
	}

	renewal, err := adapter.Parse(ctx, paymentdomain.InboundRequest{
		Query: url.Values{"eventType": {"RenewalSuccess"}},
		Form:  url.Values{"subscriptionId": {"sub-1"}, "billedAmount": {"12.50"}, "transactionId": {"cc-10"}},
	})
	if err != nil {
		t.Fatalf("parse renewal: %v", err)
	}
	if renewal.Type != paymentdomain.EventTypeRenewal || !renewal.BilledAmount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected renewal event %+v", renewal)
	}

	_, err = adapter.Parse(ctx, paymentdomain.InboundRequest{Query: url.Values{"eventType": {"Cancellation"}}})
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored event, got %v", err)
	}

	_, err = adapter.Parse(ctx, paymentdomain.InboundRequest{Query: url.Values{"eventType": {"NewSaleSuccess"}}})
	if !errors.Is(err, paymentdomain.ErrInvalidEvent) {
		t.Fatalf("expected invalid event without transaction id, got %v", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`<?xml version="1.0"?><results>1</results>`))
	}))
	defer server.Close()

	adapter := newAdapter(t, false, map[string]any{
		"datalink_url":      server.URL,
		"datalink_username": "dl",
		"datalink_password": "pw",
	})
	if err := adapter.CancelSubscription(context.Background(), "sub-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Get("action") != "cancelSubscription" || got.Get("subscriptionId") != "sub-1" {
		t.Fatalf("unexpected datalink query %v", got)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<results>0</results>`))
	}))
	defer failing.Close()
	adapter.datalinkURL = failing.URL
	if err := adapter.CancelSubscription(context.Background(), "sub-1"); !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}
