/*
Package notify dispatches booking emails after transitions commit.

PURPOSE:
  Implements booking.Notifier. Messages are rendered to plain subject/body
  strings here and handed to a Sender. Dispatch is fire-and-forget: the
  lifecycle service never blocks on mail delivery and a failed send never
  rolls back a transition. Failures are logged and counted.

RATE LIMITING:
  Outbound mail goes through a token bucket (golang.org/x/time/rate) so a
  burst of bookings cannot trip provider limits.

SENDERS:
  - SendGridSender: production delivery via the SendGrid API
  - LogSender:      logs instead of sending (dev, tests, missing API key)
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/metrics"
)

// =============================================================================
// SENDER
// =============================================================================

// Message is a fully rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("notification (log only)")
	return nil
}

// =============================================================================
// DISPATCHER
// =============================================================================

// sendTimeout bounds a single delivery attempt.
const sendTimeout = 10 * time.Second

// Dispatcher implements booking.Notifier over a Sender.
type Dispatcher struct {
	Sender        Sender
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
	ApproverEmail string

	limiter *rate.Limiter
}

func NewDispatcher(sender Sender, logger zerolog.Logger, approverEmail string) *Dispatcher {
	return &Dispatcher{
		Sender:        sender,
		Logger:        logger,
		ApproverEmail: approverEmail,
		limiter:       rate.NewLimiter(rate.Limit(5), 10),
	}
}

var _ booking.Notifier = (*Dispatcher)(nil)

// BookingCreated notifies the approver that a new request is waiting.
func (d *Dispatcher) BookingCreated(_ context.Context, b *booking.Booking) {
	if d.ApproverEmail == "" {
		return
	}
	d.dispatch(Message{
		To:      d.ApproverEmail,
		Subject: fmt.Sprintf("Booking request %s awaits approval", b.ID),
		Body: fmt.Sprintf("A booking for %s (%d guest(s), %s %s) is pending approval.",
			b.Range, b.TotalGuests, b.TotalAmount, b.Currency),
	})
}

// BookingApproved notifies the requester.
func (d *Dispatcher) BookingApproved(_ context.Context, b *booking.Booking) {
	to := requesterAddress(b)
	if to == "" {
		return
	}
	d.dispatch(Message{
		To:      to,
		Subject: fmt.Sprintf("Booking %s approved", b.ID),
		Body: fmt.Sprintf("Your stay %s has been approved. Total: %s %s.",
			b.Range, b.TotalAmount, b.Currency),
	})
}

// BookingRejected notifies the requester with the reason.
func (d *Dispatcher) BookingRejected(_ context.Context, b *booking.Booking) {
	to := requesterAddress(b)
	if to == "" {
		return
	}
	d.dispatch(Message{
		To:      to,
		Subject: fmt.Sprintf("Booking %s was not approved", b.ID),
		Body: fmt.Sprintf("Your stay %s was rejected: %s\nYou can adjust your request and it will be reviewed again.",
			b.Range, b.RejectionReason),
	})
}

// dispatch sends asynchronously. The caller has already committed its
// transition; delivery failures are logged and counted only. A Dispatcher
// built without NewDispatcher has no limiter and sends unthrottled.
func (d *Dispatcher) dispatch(msg Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.observe(msg, err)
				return
			}
		}
		d.observe(msg, d.Sender.Send(ctx, msg))
	}()
}

func (d *Dispatcher) observe(msg Message, err error) {
	if err != nil {
		d.Logger.Error().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("notification failed")
	}
	if d.Metrics != nil {
		d.Metrics.ObserveNotification(err == nil)
	}
}

func requesterAddress(b *booking.Booking) string {
	// Lead email covers anonymous external bookings; authenticated
	// requesters resolve their address at the API layer via user lookup,
	// which is out of this core's scope.
	return b.ExternalLeadEmail
}
