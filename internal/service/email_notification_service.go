package service

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/textproto"
	"time"

	"consultation-booking/config"
	"consultation-booking/internal/domain/entity"
	"consultation-booking/internal/domain/gateway"
	"consultation-booking/pkg/retry"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

var (
	ErrMailNotConfigured = errors.New("mail transport is not configured")
	ErrMailAuth          = errors.New("mail server rejected credentials")
)

// DefaultMailRetry allows one more attempt after 3s.
var DefaultMailRetry = retry.Policy{MaxAttempts: 2, Delay: retry.Constant(3 * time.Second)}

//go:embed templates/*.html
var mailTemplates embed.FS

var confirmationTemplates = template.Must(template.ParseFS(mailTemplates, "templates/*.html"))

// MailSender delivers a rendered message.
type MailSender interface {
	Send(ctx context.Context, msg *gomail.Message) error
}

// SMTPSender sends through an authenticated SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	if cfg.Username == "" || cfg.Password == "" {
		return &SMTPSender{}
	}
	return &SMTPSender{dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)}
}

// Send returns once the relay answers or ctx is done. gomail sets no
// deadlines after dialing, so a stalled relay only pins the background
// goroutine until the server drops the connection.
func (s *SMTPSender) Send(ctx context.Context, msg *gomail.Message) error {
	if s.dialer == nil {
		return ErrMailNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send aborted: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			return nil
		}
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && (protoErr.Code == 535 || protoErr.Code == 530) {
			return fmt.Errorf("%w: %v", ErrMailAuth, err)
		}
		return err
	}
}

type confirmationData struct {
	BookingID     string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ServiceName   string
	Date          string
	Time          string
	Timezone      string
	Duration      int
	Amount        string
	Currency      string
	Message       string
	MeetingID     string
	Password      string
	JoinURL       string
	StartURL      string
}

// EmailNotificationService sends the customer and operator confirmations
// once a meeting exists for a booking.
type EmailNotificationService struct {
	sender   MailSender
	from     string
	fromName string
	operator string
	policy   retry.Policy
	log      *logrus.Logger
}

func NewEmailNotificationService(cfg config.MailConfig, sender MailSender, log *logrus.Logger) *EmailNotificationService {
	return &EmailNotificationService{
		sender:   sender,
		from:     cfg.Username,
		fromName: cfg.FromName,
		operator: cfg.OperatorAddress,
		policy:   DefaultMailRetry,
		log:      log,
	}
}

func (s *EmailNotificationService) SendConfirmations(ctx context.Context, booking *entity.Booking, meeting entity.MeetingDetails) gateway.DispatchResult {
	data := confirmationData{
		BookingID:     booking.ID.String(),
		CustomerName:  booking.CustomerName,
		CustomerEmail: booking.CustomerEmail,
		CustomerPhone: booking.CustomerPhone,
		ServiceName:   booking.ServiceName,
		Date:          booking.Date,
		Time:          booking.Time,
		Timezone:      booking.Timezone,
		Duration:      booking.Duration,
		Amount:        booking.Price.StringFixed(2),
		Currency:      booking.Currency,
		Message:       booking.Message,
		MeetingID:     meeting.ID,
		Password:      meeting.Password,
		JoinURL:       meeting.JoinURL,
		StartURL:      meeting.StartURL,
	}

	log := s.log.WithField("booking_id", data.BookingID)

	var result gateway.DispatchResult
	result.OperatorErr = s.send(ctx, log, s.operator, "New Booking Alert - "+booking.ServiceName, "operator_confirmation.html", data)
	result.CustomerErr = s.send(ctx, log, booking.CustomerEmail, "Booking Confirmed - "+booking.ServiceName, "customer_confirmation.html", data)

	return result
}

func (s *EmailNotificationService) send(ctx context.Context, log *logrus.Entry, to, subject, templateName string, data confirmationData) error {
	if s.from == "" || to == "" {
		return ErrMailNotConfigured
	}

	var body bytes.Buffer
	if err := confirmationTemplates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("render %s: %w", templateName, err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.from, s.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())

	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := s.sender.Send(ctx, msg)
		if errors.Is(err, ErrMailAuth) || errors.Is(err, ErrMailNotConfigured) {
			return retry.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		log.Warnf("Failed to send %s, retrying in %s: %+v", templateName, wait, err)
	})
	if err != nil {
		log.Errorf("Failed to send %s to %s: %+v", templateName, to, err)
		return err
	}

	return nil
}
