package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/creatorpay/internal/payment/domain"
)

const defaultTimeout = 20 * time.Second

// ReadString returns a trimmed string setting.
func ReadString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		cast = strings.TrimSpace(cast)
		return cast, cast != ""
	case float64:
		return fmt.Sprintf("%.0f", cast), true
	default:
		return "", false
	}
}

// RequireStrings reads every key or fails with ErrInvalidConfig.
func RequireStrings(config map[string]any, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		value, ok := ReadString(config, key)
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidConfig, key)
		}
		out[key] = value
	}
	return out, nil
}

// StringOr returns the setting or fallback when it is absent.
func StringOr(config map[string]any, key, fallback string) string {
	if value, ok := ReadString(config, key); ok {
		return value
	}
	return fallback
}

// NewHTTPClient builds the outbound client shared by gateway calls.
func NewHTTPClient() *resty.Client {
	return resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", "creatorpay/1.0")
}

// CheckResponse maps a failed or non-2xx call to ErrGatewayUnavailable.
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode())
	}
	return nil
}
