package domain

import "errors"

var (
	ErrInvalidGateway          = errors.New("invalid_payment_gateway")
	ErrProviderNotFound        = errors.New("payment_provider_not_found")
	ErrInvalidConfig           = errors.New("invalid_gateway_config")
	ErrInvalidSignature        = errors.New("invalid_signature")
	ErrSourceNotAllowed        = errors.New("webhook_source_not_allowed")
	ErrInvalidPayload          = errors.New("invalid_payload")
	ErrInvalidEvent            = errors.New("invalid_event")
	ErrEventIgnored            = errors.New("event_ignored")
	ErrEventAlreadyProcessed   = errors.New("event_already_processed")
	ErrTransactionNotFound     = errors.New("transaction_not_found")
	ErrInvalidTransactionState = errors.New("invalid_transaction_state")
	ErrGatewayUnavailable      = errors.New("gateway_error")
	ErrUnsupportedOperation    = errors.New("unsupported_gateway_operation")
)
