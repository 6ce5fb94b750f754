package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// Metadata keys written on the checkout session and read back from events.
const (
	MetaBookingID     = "bookingId"
	MetaCustomerName  = "customer_name"
	MetaCustomerEmail = "customer_email"
	MetaCustomerPhone = "customer_phone"
	MetaService       = "service"
	MetaServiceID     = "service_id"
	MetaDate          = "date"
	MetaTime          = "time"
	MetaDuration      = "duration"
	MetaTimezone      = "timezone"
	MetaMessage       = "message"
	MetaCurrency      = "currency"
)

// RequiredCompletionMetadata must be present on a completed checkout session.
var RequiredCompletionMetadata = []string{
	MetaBookingID,
	MetaCustomerName,
	MetaCustomerEmail,
	MetaService,
	MetaDate,
	MetaTime,
}

type CheckoutSessionRequest struct {
	BookingID     string
	ProductName   string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentEvent is a verified event from the payment provider.
type PaymentEvent struct {
	ID            string
	Type          string
	SessionID     string
	Metadata      map[string]string
	AmountTotal   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
}

// MissingMetadata lists required keys that are absent or empty.
func (e *PaymentEvent) MissingMetadata(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if e.Metadata[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	// ParseEvent verifies the signature header against payload and decodes
	// the checkout session it carries.
	ParseEvent(payload []byte, signature string) (*PaymentEvent, error)
}
