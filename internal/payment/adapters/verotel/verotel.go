// Package verotel implements the FlexPay signed-redirect protocol.
package verotel

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

const (
	defaultStartOrderURL = "https://secure.verotel.com/startorder"
	defaultControlAPIURL = "https://controlcenter.verotel.com/api"
	defaultCurrency      = "USD"
	protocolVersion      = "4"
)

type Factory struct {
	client *resty.Client
}

func NewFactory() *Factory {
	return &Factory{client: adapters.NewHTTPClient()}
}

func (f *Factory) Gateway() string {
	return paymentdomain.GatewayVerotel
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	required, err := adapters.RequireStrings(cfg.Config, "shop_id", "signature_key")
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client:        f.client,
		shopID:        required["shop_id"],
		signatureKey:  required["signature_key"],
		currency:      adapters.StringOr(cfg.Config, "currency", defaultCurrency),
		startOrderURL: adapters.StringOr(cfg.Config, "startorder_url", defaultStartOrderURL),
		controlAPIURL: adapters.StringOr(cfg.Config, "control_api_url", defaultControlAPIURL),
		apiUser:       adapters.StringOr(cfg.Config, "api_user", ""),
		apiPassword:   adapters.StringOr(cfg.Config, "api_password", ""),
	}, nil
}

type Adapter struct {
	client        *resty.Client
	shopID        string
	signatureKey  string
	currency      string
	startOrderURL string
	controlAPIURL string
	apiUser       string
	apiPassword   string
}

func (a *Adapter) InitiateSinglePurchase(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResult, error) {
	params := a.baseParams(req)
	params.Set("type", "purchase")
	return a.signedURL(params), nil
}

func (a *Adapter) InitiateSubscription(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResult, error) {
	if req.PeriodDays <= 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}
	params := a.baseParams(req)
	params.Set("type", "subscription")
	params.Set("subscriptionType", "recurring")
	params.Set("period", ISOPeriod(req.PeriodDays))
	return a.signedURL(params), nil
}

func (a *Adapter) baseParams(req paymentdomain.CheckoutRequest) url.Values {
	params := url.Values{}
	params.Set("version", protocolVersion)
	params.Set("shopID", a.shopID)
	params.Set("priceAmount", req.Amount.StringFixed(2))
	params.Set("priceCurrency", a.currency)
	params.Set("referenceID", req.TransactionID.String())
	params.Set("description", req.Description)
	params.Set("email", req.BuyerEmail)
	params.Set("backURL", req.ReturnURL)
	// optional parameters stay out of the URL and the digest when empty
	for key := range params {
		if params.Get(key) == "" {
			params.Del(key)
		}
	}
	return params
}

func (a *Adapter) signedURL(params url.Values) *paymentdomain.CheckoutResult {
	signature := Sign(a.signatureKey, params)
	params.Set("signature", signature)
	return &paymentdomain.CheckoutResult{
		PaymentURL:   a.startOrderURL + "?" + params.Encode(),
		PaymentToken: signature,
	}
}

func (a *Adapter) Verify(ctx context.Context, req paymentdomain.InboundRequest) error {
	if !VerifySignature(a.signatureKey, mergedParams(req)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, req paymentdomain.InboundRequest) (*paymentdomain.WebhookEvent, error) {
	params := mergedParams(req)
	saleID := strings.TrimSpace(params.Get("saleID"))
	if saleID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	amount := decimal.Zero
	if value, err := decimal.NewFromString(params.Get("priceAmount")); err == nil {
		amount = value.Round(2)
	}

	event := strings.ToLower(strings.TrimSpace(params.Get("event")))
	providerTxn := strings.TrimSpace(params.Get("transactionID"))
	eventID := saleID + ":" + event
	if providerTxn != "" {
		eventID = saleID + ":" + providerTxn
	}

	switch strings.ToLower(params.Get("type")) {
	case "purchase":
		return a.saleEvent(params, eventID, saleID, "", amount, req)
	case "subscription":
		switch event {
		case "", "initial":
			return a.saleEvent(params, eventID, saleID, saleID, amount, req)
		case "rebill":
			return &paymentdomain.WebhookEvent{
				ProviderEventID: eventID,
				Type:            paymentdomain.EventTypeRenewal,
				SubscriptionRef: saleID,
				BilledAmount:    amount,
				RawPayload:      []byte(params.Encode()),
			}, nil
		}
	}
	return nil, paymentdomain.ErrEventIgnored
}

func (a *Adapter) saleEvent(params url.Values, eventID, saleID, subscriptionRef string, amount decimal.Decimal, req paymentdomain.InboundRequest) (*paymentdomain.WebhookEvent, error) {
	txnID, err := snowflake.ParseString(strings.TrimSpace(params.Get("referenceID")))
	if err != nil || txnID == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return &paymentdomain.WebhookEvent{
		ProviderEventID: eventID,
		Type:            paymentdomain.EventTypeSale,
		TransactionID:   txnID,
		SubscriptionRef: subscriptionRef,
		BilledAmount:    amount,
		RawPayload:      []byte(params.Encode()),
	}, nil
}

func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	if subscriptionRef == "" {
		return paymentdomain.ErrInvalidPayload
	}
	if a.apiUser == "" || a.apiPassword == "" {
		return fmt.Errorf("%w: missing control center credentials", paymentdomain.ErrInvalidConfig)
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(a.apiUser, a.apiPassword).
		SetHeader("Accept", "application/json").
		Post(strings.TrimRight(a.controlAPIURL, "/") + "/sale/" + url.PathEscape(subscriptionRef) + "/cancel")
	return adapters.CheckResponse(resp, err)
}

func (a *Adapter) Acknowledge(paymentdomain.InboundRequest) (string, []byte) {
	return "text/plain; charset=utf-8", []byte("OK")
}

// ISOPeriod expresses a billing period in days as an ISO-8601 duration.
func ISOPeriod(days int) string {
	if days%365 == 0 {
		return "P" + strconv.Itoa(days/365) + "Y"
	}
	return "P" + strconv.Itoa(days) + "D"
}

func mergedParams(req paymentdomain.InboundRequest) url.Values {
	params := url.Values{}
	for key, values := range req.Query {
		params[key] = values
	}
	for key, values := range req.Form {
		if _, ok := params[key]; !ok {
			params[key] = values
		}
	}
	return params
}
