package verotel

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

func TestSignatureRoundTrip(t *testing.T) {
	cases := []url.Values{
		{"shopID": {"123"}, "priceAmount": {"9.99"}, "referenceID": {"1"}},
		{"version": {"4"}, "type": {"subscription"}, "period": {"P1Y"}, "description": {"a:b=c"}},
		{"only": {"one"}},
	}
	for _, params := range cases {
		params.Set("signature", Sign("secret", params))
		if !VerifySignature("secret", params) {
			t.Fatalf("expected round trip for %v", params)
		}
		for key := range params {
			if key == "signature" {
				continue
			}
			tampered := url.Values{}
			for k, v := range params {
				tampered[k] = append([]string(nil), v...)
			}
			tampered.Set(key, tampered.Get(key)+"x")
			if VerifySignature("secret", tampered) {
				t.Fatalf("expected tampered %s to fail", key)
			}
		}
		if VerifySignature("other", params) {
			t.Fatalf("expected wrong secret to fail")
		}
	}
}

func TestSignKnownVector(t *testing.T) {
	params := url.Values{"b": {"2"}, "a": {"1"}, "signature": {"ignored"}}
	sum := sha1.Sum([]byte("s:a=1:b=2"))
	if got := Sign("s", params); got != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected signature %s", got)
	}
}

func TestISOPeriod(t *testing.T) {
	if ISOPeriod(30) != "P30D" || ISOPeriod(365) != "P1Y" {
		t.Fatalf("unexpected periods %s %s", ISOPeriod(30), ISOPeriod(365))
	}
}

func TestInitiateAndParse(t *testing.T) {
	ctx := context.Background()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{
		"shop_id":       "55",
		"signature_key": "key",
	}})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	result, err := adapter.InitiateSubscription(ctx, paymentdomain.CheckoutRequest{
		TransactionID: 99,
		Amount:        decimal.RequireFromString("99.9"),
		PeriodDays:    365,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	parsed, _ := url.Parse(result.PaymentURL)
	q := parsed.Query()
	if q.Get("period") != "P1Y" || q.Get("priceAmount") != "99.90" || q.Has("email") {
		t.Fatalf("unexpected query %v", q)
	}
	if !VerifySignature("key", q) {
		t.Fatalf("checkout url signature must verify")
	}

	postback := url.Values{
		"type":          {"subscription"},
		"event":         {"initial"},
		"saleID":        {"S-1"},
		"referenceID":   {"99"},
		"priceAmount":   {"99.90"},
		"transactionID": {"T-1"},
	}
	postback.Set("signature", Sign("key", postback))
	req := paymentdomain.InboundRequest{Query: postback}
	if err := adapter.Verify(ctx, req); err != nil {
		t.Fatalf("verify: %v", err)
	}
	event, err := adapter.Parse(ctx, req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypeSale || event.TransactionID != 99 || event.SubscriptionRef != "S-1" {
		t.Fatalf("unexpected event %+v", event)
	}

	postback.Set("event", "rebill")
	postback.Set("transactionID", "T-2")
	postback.Set("signature", Sign("key", postback))
	rebill, err := adapter.Parse(ctx, paymentdomain.InboundRequest{Query: postback})
	if err != nil {
		t.Fatalf("parse rebill: %v", err)
	}
	if rebill.Type != paymentdomain.EventTypeRenewal || rebill.ProviderEventID != "S-1:T-2" {
		t.Fatalf("unexpected rebill %+v", rebill)
	}

	postback.Set("amount", "1")
	if err := adapter.Verify(ctx, paymentdomain.InboundRequest{Query: postback}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}
