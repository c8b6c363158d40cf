// Package ccbill implements the hosted FlexForms checkout and webhook
// protocol of CCBill.
package ccbill

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
)

const (
	defaultFlexformURL = "https://api.ccbill.com/wap-frontflex/flexforms/"
	defaultDatalinkURL = "https://datalink.ccbill.com/utils/subscriptionManagement.cgi"
	defaultCurrency    = "840"
	singlePeriodDays   = 30
	numRebills         = 99

	EventNewSaleSuccess = "NewSaleSuccess"
	EventRenewalSuccess = "RenewalSuccess"
)

// Published webhook source ranges.
var defaultAllowlist = []string{
	"64.38.212.0/24",
	"64.38.215.0/24",
	"64.38.240.0/24",
	"64.38.241.0/24",
}

type Factory struct {
	client *resty.Client
}

func NewFactory() *Factory {
	return &Factory{client: adapters.NewHTTPClient()}
}

func (f *Factory) Gateway() string {
	return paymentdomain.GatewayCCBill
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	required, err := adapters.RequireStrings(cfg.Config, "client_accnum", "client_subacc", "flexform_id", "salt")
	if err != nil {
		return nil, err
	}

	allowlist := defaultAllowlist
	if raw, ok := adapters.ReadString(cfg.Config, "allowed_ips"); ok {
		allowlist = strings.Split(raw, ",")
	}
	prefixes, err := parsePrefixes(allowlist)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidConfig, err)
	}

	return &Adapter{
		client:           f.client,
		clientAccnum:     required["client_accnum"],
		clientSubacc:     required["client_subacc"],
		flexformID:       required["flexform_id"],
		salt:             required["salt"],
		currencyCode:     adapters.StringOr(cfg.Config, "currency_code", defaultCurrency),
		flexformURL:      adapters.StringOr(cfg.Config, "flexform_url", defaultFlexformURL),
		datalinkURL:      adapters.StringOr(cfg.Config, "datalink_url", defaultDatalinkURL),
		datalinkUsername: adapters.StringOr(cfg.Config, "datalink_username", ""),
		datalinkPassword: adapters.StringOr(cfg.Config, "datalink_password", ""),
		allowlist:        prefixes,
		enforceAllowlist: cfg.EnforceAllowlist,
	}, nil
}

type Adapter struct {
	client           *resty.Client
	clientAccnum     string
	clientSubacc     string
	flexformID       string
	salt             string
	currencyCode     string
	flexformURL      string
	datalinkURL      string
	datalinkUsername string
	datalinkPassword string
	allowlist        []netip.Prefix
	enforceAllowlist bool
}

func (a *Adapter) InitiateSinglePurchase(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResult, error) {
	price := req.Amount.StringFixed(2)
	period := strconv.Itoa(singlePeriodDays)
	digest := formDigest(price, period, a.currencyCode, a.salt)

	params := a.baseParams(req)
	params.Set("initialPrice", price)
	params.Set("initialPeriod", period)
	params.Set("formDigest", digest)
	return &paymentdomain.CheckoutResult{PaymentURL: a.formURL(params), PaymentToken: digest}, nil
}

func (a *Adapter) InitiateSubscription(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResult, error) {
	if req.PeriodDays <= 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}
	price := req.Amount.StringFixed(2)
	period := strconv.Itoa(req.PeriodDays)
	rebills := strconv.Itoa(numRebills)
	digest := formDigest(price, period, price, period, rebills, a.currencyCode, a.salt)

	params := a.baseParams(req)
	params.Set("initialPrice", price)
	params.Set("initialPeriod", period)
	params.Set("recurringPrice", price)
	params.Set("recurringPeriod", period)
	params.Set("numRebills", rebills)
	params.Set("formDigest", digest)
	return &paymentdomain.CheckoutResult{PaymentURL: a.formURL(params), PaymentToken: digest}, nil
}

func (a *Adapter) baseParams(req paymentdomain.CheckoutRequest) url.Values {
	params := url.Values{}
	params.Set("clientSubacc", a.clientSubacc)
	params.Set("currencyCode", a.currencyCode)
	params.Set("X-transactionId", req.TransactionID.String())
	params.Set("X-orderNumber", req.OrderNumber)
	if req.BuyerEmail != "" {
		params.Set("email", req.BuyerEmail)
	}
	return params
}

func (a *Adapter) formURL(params url.Values) string {
	return strings.TrimRight(a.flexformURL, "/") + "/" + url.PathEscape(a.flexformID) + "?" + params.Encode()
}

// Verify trusts the callback by source address only; CCBill webhooks carry no
// signature.
func (a *Adapter) Verify(ctx context.Context, req paymentdomain.InboundRequest) error {
	if !a.enforceAllowlist {
		return nil
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(req.RemoteIP))
	if err != nil {
		return paymentdomain.ErrSourceNotAllowed
	}
	addr = addr.Unmap()
	for _, prefix := range a.allowlist {
		if prefix.Contains(addr) {
			return nil
		}
	}
	return paymentdomain.ErrSourceNotAllowed
}

func (a *Adapter) Parse(ctx context.Context, req paymentdomain.InboundRequest) (*paymentdomain.WebhookEvent, error) {
	fields, err := readFields(req)
	if err != nil {
		return nil, err
	}
	eventType := strings.TrimSpace(req.Query.Get("eventType"))
	if eventType == "" {
		eventType = fields.get("eventType")
	}

	subscriptionID := fields.get("subscriptionId")
	occurredAt := parseTimestamp(fields.get("timestamp"))

	switch eventType {
	case EventNewSaleSuccess:
		raw := fields.get("X-transactionId")
		if raw == "" {
			raw = fields.get("X-transactionid")
		}
		txnID, err := snowflake.ParseString(raw)
		if err != nil || txnID == 0 {
			return nil, paymentdomain.ErrInvalidEvent
		}
		return &paymentdomain.WebhookEvent{
			ProviderEventID: eventID(eventType, fields.get("transactionId"), subscriptionID, raw),
			Type:            paymentdomain.EventTypeSale,
			TransactionID:   txnID,
			SubscriptionRef: subscriptionID,
			BilledAmount:    parseAmount(fields.get("billedInitialPrice"), fields.get("accountingInitialPrice")),
			OccurredAt:      occurredAt,
			RawPayload:      req.Body,
		}, nil
	case EventRenewalSuccess:
		if subscriptionID == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		return &paymentdomain.WebhookEvent{
			ProviderEventID: eventID(eventType, fields.get("transactionId"), subscriptionID, fields.get("renewalDate")),
			Type:            paymentdomain.EventTypeRenewal,
			SubscriptionRef: subscriptionID,
			BilledAmount:    parseAmount(fields.get("billedAmount"), fields.get("accountingAmount")),
			OccurredAt:      occurredAt,
			RawPayload:      req.Body,
		}, nil
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type datalinkResult struct {
	Results string `xml:",chardata"`
}

func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	if subscriptionRef == "" {
		return paymentdomain.ErrInvalidPayload
	}
	if a.datalinkUsername == "" || a.datalinkPassword == "" {
		return fmt.Errorf("%w: missing datalink credentials", paymentdomain.ErrInvalidConfig)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"clientAccnum":   a.clientAccnum,
			"clientSubacc":   a.clientSubacc,
			"username":       a.datalinkUsername,
			"password":       a.datalinkPassword,
			"action":         "cancelSubscription",
			"subscriptionId": subscriptionRef,
			"returnXML":      "1",
		}).
		Get(a.datalinkURL)
	if err := adapters.CheckResponse(resp, err); err != nil {
		return err
	}

	var result datalinkResult
	if err := xml.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("%w: malformed datalink response", paymentdomain.ErrGatewayUnavailable)
	}
	if strings.TrimSpace(result.Results) != "1" {
		return fmt.Errorf("%w: datalink result %q", paymentdomain.ErrGatewayUnavailable, strings.TrimSpace(result.Results))
	}
	return nil
}

// formDigest is the md5 of the concatenated form values and salt.
func formDigest(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

type fieldSet map[string]string

func (f fieldSet) get(key string) string {
	return strings.TrimSpace(f[key])
}

// readFields accepts both the JSON and the form-encoded webhook formats.
func readFields(req paymentdomain.InboundRequest) (fieldSet, error) {
	fields := fieldSet{}
	for key := range req.Query {
		fields[key] = req.Query.Get(key)
	}
	for key := range req.Form {
		fields[key] = req.Form.Get(key)
	}

	body := strings.TrimSpace(string(req.Body))
	if strings.HasPrefix(body, "{") {
		var decoded map[string]any
		if err := json.Unmarshal(req.Body, &decoded); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		for key, value := range decoded {
			switch cast := value.(type) {
			case string:
				fields[key] = cast
			case float64:
				fields[key] = strconv.FormatFloat(cast, 'f', -1, 64)
			case bool:
				fields[key] = strconv.FormatBool(cast)
			}
		}
	}
	return fields, nil
}

func eventID(eventType string, candidates ...string) string {
	for _, candidate := range candidates {
		if candidate != "" {
			return eventType + ":" + candidate
		}
	}
	return eventType
}

func parseAmount(candidates ...string) decimal.Decimal {
	for _, candidate := range candidates {
		if value, err := decimal.NewFromString(candidate); err == nil && value.IsPositive() {
			return value.Round(2)
		}
	}
	return decimal.Zero
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				return nil, err
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(item)
		if err != nil {
			return nil, err
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}
