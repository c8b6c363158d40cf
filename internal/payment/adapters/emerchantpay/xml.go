package emerchantpay

import "encoding/xml"

type transactionType struct {
	Name string `xml:"name,attr"`
}

type wpfPaymentRequest struct {
	XMLName          xml.Name          `xml:"wpf_payment"`
	TransactionID    string            `xml:"transaction_id"`
	Usage            string            `xml:"usage"`
	Description      string            `xml:"description,omitempty"`
	Amount           int64             `xml:"amount"`
	Currency         string            `xml:"currency"`
	CustomerEmail    string            `xml:"customer_email,omitempty"`
	NotificationURL  string            `xml:"notification_url"`
	ReturnSuccessURL string            `xml:"return_success_url"`
	ReturnFailureURL string            `xml:"return_failure_url"`
	ReturnCancelURL  string            `xml:"return_cancel_url"`
	TransactionTypes []transactionType `xml:"transaction_types>transaction_type"`
}

type paymentTransaction struct {
	UniqueID        string `xml:"unique_id"`
	Status          string `xml:"status"`
	TransactionType string `xml:"transaction_type"`
}

type wpfPaymentResponse struct {
	XMLName            xml.Name            `xml:"wpf_payment"`
	Status             string              `xml:"status"`
	UniqueID           string              `xml:"unique_id"`
	TransactionID      string              `xml:"transaction_id"`
	RedirectURL        string              `xml:"redirect_url"`
	Message            string              `xml:"message"`
	TechnicalMessage   string              `xml:"technical_message"`
	PaymentTransaction *paymentTransaction `xml:"payment_transaction"`
}

type wpfReconcileRequest struct {
	XMLName  xml.Name `xml:"wpf_reconcile"`
	UniqueID string   `xml:"unique_id"`
}

type recurringSaleRequest struct {
	XMLName         xml.Name `xml:"payment_transaction"`
	TransactionType string   `xml:"transaction_type"`
	TransactionID   string   `xml:"transaction_id"`
	Usage           string   `xml:"usage"`
	ReferenceID     string   `xml:"reference_id"`
	Amount          int64    `xml:"amount"`
	Currency        string   `xml:"currency"`
}

type paymentResponse struct {
	XMLName       xml.Name `xml:"payment_response"`
	Status        string   `xml:"status"`
	UniqueID      string   `xml:"unique_id"`
	TransactionID string   `xml:"transaction_id"`
	Message       string   `xml:"message"`
}

// notification is the asynchronous WPF status notification.
type notification struct {
	XMLName                    xml.Name `xml:"notification"`
	WPFUniqueID                string   `xml:"wpf_unique_id"`
	WPFStatus                  string   `xml:"wpf_status"`
	WPFTransactionID           string   `xml:"wpf_transaction_id"`
	PaymentTransactionUniqueID string   `xml:"payment_transaction_unique_id"`
	PaymentTransactionAmount   string   `xml:"payment_transaction_amount"`
	Signature                  string   `xml:"signature"`
}

type notificationEcho struct {
	XMLName     xml.Name `xml:"notification_echo"`
	WPFUniqueID string   `xml:"wpf_unique_id"`
}
