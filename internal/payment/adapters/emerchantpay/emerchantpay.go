// Package emerchantpay implements the Web Payment Form protocol, status
// reconciliation and recurring sales.
package emerchantpay

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

const (
	defaultWPFURL     = "https://wpf.emerchantpay.net/wpf"
	defaultGatewayURL = "https://gate.emerchantpay.net/process"
	defaultCurrency   = "USD"

	typeSale          = "sale3d"
	typeInitRecurring = "init_recurring_sale3d"
	typeRecurringSale = "recurring_sale"
)

var hundred = decimal.NewFromInt(100)

type Factory struct {
	client *resty.Client
}

func NewFactory() *Factory {
	return &Factory{client: adapters.NewHTTPClient()}
}

func (f *Factory) Gateway() string {
	return paymentdomain.GatewayEmerchantpay
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	required, err := adapters.RequireStrings(cfg.Config, "username", "password")
	if err != nil {
		return nil, err
	}
	wpfURL := strings.TrimRight(adapters.StringOr(cfg.Config, "wpf_url", defaultWPFURL), "/")
	return &Adapter{
		client:          f.client,
		username:        required["username"],
		password:        required["password"],
		terminalToken:   adapters.StringOr(cfg.Config, "terminal_token", ""),
		currency:        adapters.StringOr(cfg.Config, "currency", defaultCurrency),
		wpfURL:          wpfURL,
		reconcileURL:    adapters.StringOr(cfg.Config, "reconcile_url", wpfURL+"/reconcile"),
		gatewayURL:      strings.TrimRight(adapters.StringOr(cfg.Config, "gateway_url", defaultGatewayURL), "/"),
		transactionType: adapters.StringOr(cfg.Config, "transaction_type", typeSale),
	}, nil
}

type Adapter struct {
	client          *resty.Client
	username        string
	password        string
	terminalToken   string
	currency        string
	wpfURL          string
	reconcileURL    string
	gatewayURL      string
	transactionType string
}

func (a *Adapter) InitiateSinglePurchase(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResult, error) {
	return a.createWPF(ctx, req, a.transactionType)
}

func (a *Adapter) InitiateSubscription(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResult, error) {
	return a.createWPF(ctx, req, typeInitRecurring)
}

func (a *Adapter) createWPF(ctx context.Context, req paymentdomain.CheckoutRequest, txnType string) (*paymentdomain.CheckoutResult, error) {
	if req.NotificationURL == "" {
		return nil, fmt.Errorf("%w: notification url required", paymentdomain.ErrInvalidConfig)
	}
	body := wpfPaymentRequest{
		TransactionID:    req.TransactionID.String(),
		Usage:            usage(req.OrderNumber),
		Description:      req.Description,
		Amount:           minorUnits(req.Amount),
		Currency:         a.currency,
		CustomerEmail:    req.BuyerEmail,
		NotificationURL:  req.NotificationURL,
		ReturnSuccessURL: req.ReturnURL,
		ReturnFailureURL: req.ReturnURL,
		ReturnCancelURL:  req.ReturnURL,
		TransactionTypes: []transactionType{{Name: txnType}},
	}

	var out wpfPaymentResponse
	if err := a.postXML(ctx, a.wpfURL, body, &out); err != nil {
		return nil, err
	}
	if out.UniqueID == "" || out.RedirectURL == "" || strings.EqualFold(out.Status, "error") {
		return nil, fmt.Errorf("%w: wpf create %s %s", paymentdomain.ErrGatewayUnavailable, out.Status, out.TechnicalMessage)
	}
	return &paymentdomain.CheckoutResult{PaymentURL: out.RedirectURL, PaymentToken: out.UniqueID}, nil
}

func (a *Adapter) Verify(ctx context.Context, req paymentdomain.InboundRequest) error {
	n, err := readNotification(req)
	if err != nil {
		return err
	}
	if n.WPFUniqueID == "" || n.Signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	sum := sha1.Sum([]byte(n.WPFUniqueID + a.password))
	want := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(n.Signature)), []byte(want)) != 1 {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, req paymentdomain.InboundRequest) (*paymentdomain.WebhookEvent, error) {
	n, err := readNotification(req)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(n.WPFStatus, string(paymentdomain.RemoteStatusApproved)) {
		return nil, paymentdomain.ErrEventIgnored
	}

	event := &paymentdomain.WebhookEvent{
		ProviderEventID: n.WPFUniqueID + ":" + strings.ToLower(n.WPFStatus),
		Type:            paymentdomain.EventTypeSale,
		PaymentToken:    n.WPFUniqueID,
		SubscriptionRef: n.PaymentTransactionUniqueID,
		RawPayload:      req.Body,
	}
	if id, err := snowflake.ParseString(strings.TrimSpace(n.WPFTransactionID)); err == nil {
		event.TransactionID = id
	}
	if minor, err := decimal.NewFromString(n.PaymentTransactionAmount); err == nil {
		event.BilledAmount = minor.Div(hundred).Round(2)
	}
	return event, nil
}

// CancelSubscription has no remote call: recurring sales are initiated from
// our side, so dropping the scheduled charge cancels the plan.
func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	return nil
}

// Acknowledge echoes the notification even when it carried no settlement,
// which stops WPF from redelivering it.
func (a *Adapter) Acknowledge(req paymentdomain.InboundRequest) (string, []byte) {
	n, err := readNotification(req)
	if err != nil {
		return echo("")
	}
	return echo(n.WPFUniqueID)
}

func (a *Adapter) QueryStatus(ctx context.Context, paymentToken string) (paymentdomain.RemoteStatus, []byte, error) {
	if paymentToken == "" {
		return "", nil, paymentdomain.ErrInvalidPayload
	}
	var out wpfPaymentResponse
	raw, err := a.postXMLRaw(ctx, a.reconcileURL, wpfReconcileRequest{UniqueID: paymentToken}, &out)
	if err != nil {
		return "", nil, err
	}
	status := out.Status
	if out.PaymentTransaction != nil && out.PaymentTransaction.Status != "" {
		status = out.PaymentTransaction.Status
	}
	return MapStatus(status), raw, nil
}

func (a *Adapter) ChargeRecurring(ctx context.Context, charge paymentdomain.RecurringCharge) (*paymentdomain.RecurringResult, error) {
	if a.terminalToken == "" {
		return nil, fmt.Errorf("%w: missing terminal_token", paymentdomain.ErrInvalidConfig)
	}
	if charge.SubscriptionRef == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	currency := charge.Currency
	if currency == "" {
		currency = a.currency
	}
	body := recurringSaleRequest{
		TransactionType: typeRecurringSale,
		TransactionID:   charge.TransactionID.String(),
		Usage:           usage(charge.Description),
		ReferenceID:     charge.SubscriptionRef,
		Amount:          minorUnits(charge.Amount),
		Currency:        currency,
	}
	var out paymentResponse
	raw, err := a.postXMLRaw(ctx, a.gatewayURL+"/"+a.terminalToken, body, &out)
	if err != nil {
		return nil, err
	}
	return &paymentdomain.RecurringResult{Status: MapStatus(out.Status), PaymentToken: out.UniqueID, Raw: raw}, nil
}

func (a *Adapter) postXML(ctx context.Context, endpoint string, body, out any) error {
	_, err := a.postXMLRaw(ctx, endpoint, body, out)
	return err
}

func (a *Adapter) postXMLRaw(ctx context.Context, endpoint string, body, out any) ([]byte, error) {
	payload, err := xml.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(a.username, a.password).
		SetHeader("Content-Type", "text/xml").
		SetBody(append([]byte(xml.Header), payload...)).
		Post(endpoint)
	if err := adapters.CheckResponse(resp, err); err != nil {
		return nil, err
	}
	if err := xml.Unmarshal(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("%w: malformed response", paymentdomain.ErrGatewayUnavailable)
	}
	return resp.Body(), nil
}

// MapStatus folds WPF and processing statuses into reconciliation outcomes.
func MapStatus(status string) paymentdomain.RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return paymentdomain.RemoteStatusApproved
	case "declined", "error", "timeout", "unsuccessful", "voided", "refunded", "chargebacked":
		return paymentdomain.RemoteStatusDeclined
	default:
		return paymentdomain.RemoteStatusPending
	}
}

func readNotification(req paymentdomain.InboundRequest) (*notification, error) {
	body := strings.TrimSpace(string(req.Body))
	if strings.HasPrefix(body, "<") {
		var n notification
		if err := xml.Unmarshal(req.Body, &n); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return &n, nil
	}
	return &notification{
		WPFUniqueID:                req.Value("wpf_unique_id"),
		WPFStatus:                  req.Value("wpf_status"),
		WPFTransactionID:           req.Value("wpf_transaction_id"),
		PaymentTransactionUniqueID: req.Value("payment_transaction_unique_id"),
		PaymentTransactionAmount:   req.Value("payment_transaction_amount"),
		Signature:                  req.Value("signature"),
	}, nil
}

func echo(uniqueID string) (string, []byte) {
	out, err := xml.Marshal(notificationEcho{WPFUniqueID: uniqueID})
	if err != nil {
		return "text/xml", []byte(xml.Header)
	}
	return "text/xml", append([]byte(xml.Header), out...)
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func usage(orderNumber string) string {
	if orderNumber == "" {
		return "creatorpay order"
	}
	return "creatorpay order " + orderNumber
}
