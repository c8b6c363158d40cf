package domain

import "strings"

const (
	GatewayCCBill       = "ccbill"
	GatewayVerotel      = "verotel"
	GatewayEmerchantpay = "emerchantpay"
	// GatewayWallet settles against the buyer's stored balance without an
	// external call.
	GatewayWallet = "wallet"
)

// ExternalGateways lists the card processors with a webhook adapter.
var ExternalGateways = []string{GatewayCCBill, GatewayVerotel, GatewayEmerchantpay}

func NormalizeGateway(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func IsKnownGateway(name string) bool {
	switch NormalizeGateway(name) {
	case GatewayCCBill, GatewayVerotel, GatewayEmerchantpay, GatewayWallet:
		return true
	}
	return false
}

func IsExternalGateway(name string) bool {
	n := NormalizeGateway(name)
	return IsKnownGateway(n) && n != GatewayWallet
}
