package domain

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type AdapterConfig struct {
	Gateway     string
	PerformerID snowflake.ID
	Config      map[string]any

	// EnforceAllowlist rejects webhooks from outside the gateway's published
	// source addresses.
	EnforceAllowlist bool
}

type AdapterFactory interface {
	Gateway() string
	NewAdapter(cfg AdapterConfig) (GatewayAdapter, error)
}

type CheckoutRequest struct {
	TransactionID snowflake.ID
	OrderID       snowflake.ID
	OrderNumber   string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	BuyerEmail    string

	// PeriodDays is the billing period of a subscription checkout.
	PeriodDays      int
	NotificationURL string
	ReturnURL       string
}

type CheckoutResult struct {
	PaymentURL   string
	PaymentToken string
}

// InboundRequest is a webhook call as received over HTTP.
type InboundRequest struct {
	Method   string
	Query    url.Values
	Form     url.Values
	Body     []byte
	Headers  http.Header
	RemoteIP string
}

// Value returns a field from the query string or the form body.
func (r InboundRequest) Value(key string) string {
	if v := r.Query.Get(key); v != "" {
		return v
	}
	return r.Form.Get(key)
}

type GatewayAdapter interface {
	InitiateSinglePurchase(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	InitiateSubscription(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	Verify(ctx context.Context, req InboundRequest) error
	Parse(ctx context.Context, req InboundRequest) (*WebhookEvent, error)
	CancelSubscription(ctx context.Context, subscriptionRef string) error
}

// StatusQuerier is implemented by gateways whose webhooks are unreliable.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, paymentToken string) (RemoteStatus, []byte, error)
}

type RecurringCharge struct {
	TransactionID   snowflake.ID
	SubscriptionRef string
	Amount          decimal.Decimal
	Currency        string
	Description     string
}

type RecurringResult struct {
	Status       RemoteStatus
	PaymentToken string
	Raw          []byte
}

// RecurringCharger bills a stored subscription reference without the buyer.
type RecurringCharger interface {
	ChargeRecurring(ctx context.Context, charge RecurringCharge) (*RecurringResult, error)
}

// WebhookResponder lets a gateway dictate its acknowledgement body.
type WebhookResponder interface {
	Acknowledge(req InboundRequest) (contentType string, body []byte)
}
