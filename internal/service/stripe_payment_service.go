package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"consultation-booking/config"
	"consultation-booking/internal/domain/gateway"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	ErrSignatureVerification = errors.New("payment event signature verification failed")
	ErrMalformedPaymentEvent = errors.New("malformed payment event")
)

var centsMultiplier = decimal.NewFromInt(100)

// StripePaymentService creates checkout sessions and verifies webhook deliveries.
type StripePaymentService struct {
	api           *client.API
	webhookSecret string
	sessionTTL    time.Duration
	log           *logrus.Logger
}

func NewStripePaymentService(secretKey, webhookSecret string, sessionTTL time.Duration, log *logrus.Logger) *StripePaymentService {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripePaymentService{
		api:           api,
		webhookSecret: webhookSecret,
		sessionTTL:    config.ClampCheckoutSessionTTL(sessionTTL),
		log:           log,
	}
}

func (s *StripePaymentService) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutSessionRequest) (*gateway.CheckoutSession, error) {
	params := s.checkoutParams(req, time.Now())
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		s.log.Warnf("Failed to create checkout session for booking %s: %+v", req.BookingID, err)
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &gateway.CheckoutSession{
		ID:  session.ID,
		URL: session.URL,
	}, nil
}

// checkoutParams builds the session request; expires_at is rounded up so
// the whole-second value never lands under the configured TTL.
func (s *StripePaymentService) checkoutParams(req gateway.CheckoutSessionRequest, now time.Time) *stripe.CheckoutSessionParams {
	productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.ProductName),
	}
	if req.Description != "" {
		productData.Description = stripe.String(req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(strings.ToLower(req.Currency)),
					ProductData: productData,
					UnitAmount:  stripe.Int64(ToMinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		ExpiresAt:     stripe.Int64(now.Add(s.sessionTTL).Add(time.Second - 1).Unix()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				gateway.MetaBookingID: req.BookingID,
			},
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func (s *StripePaymentService) ParseEvent(payload []byte, signature string) (*gateway.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}

	result := &gateway.PaymentEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch result.Type {
	case gateway.EventCheckoutCompleted, gateway.EventCheckoutExpired:
	default:
		return result, nil
	}

	if event.Data == nil {
		return nil, ErrMalformedPaymentEvent
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPaymentEvent, err)
	}

	result.SessionID = session.ID
	result.Metadata = session.Metadata
	result.AmountTotal = session.AmountTotal
	result.Currency = strings.ToUpper(string(session.Currency))
	result.CustomerEmail = session.CustomerEmail
	if session.CustomerDetails != nil {
		result.CustomerName = session.CustomerDetails.Name
		if result.CustomerEmail == "" {
			result.CustomerEmail = session.CustomerDetails.Email
		}
	}

	return result, nil
}

// ToMinorUnits converts a major-unit price to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(centsMultiplier).Round(0).IntPart()
}

// FromMinorUnits converts cents back to a major-unit amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
