// Package settlement owns payment-method policy and the payment
// gateway callback contract: which methods settle at the counter,
// callback signature verification, provider status mapping, and
// post-settlement customer notification.
package settlement

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kasirpos/internal/domain"
	"kasirpos/internal/metrics"
	"kasirpos/internal/notify"
)

var ErrBadSignature = errors.New("invalid gateway signature")

const (
	notifyAttempts = 3
	notifyBackoff  = 2 * time.Second
)

type Processor struct {
	serverKey string
	notifier  notify.Notifier
	log       zerolog.Logger
}

func NewProcessor(serverKey string, notifier notify.Notifier, log zerolog.Logger) *Processor {
	return &Processor{
		serverKey: serverKey,
		notifier:  notifier,
		log:       log.With().Str("component", "settlement").Logger(),
	}
}

// NormalizeMethod canonicalizes a requested payment method. An empty
// method defaults to CASH, matching counter usage.
func NormalizeMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case "":
		return domain.PaymentMethodCash, nil
	case domain.PaymentMethodCash,
		domain.PaymentMethodCard,
		domain.PaymentMethodTransfer,
		domain.PaymentMethodQRIS,
		domain.PaymentMethodVirtualAccount,
		domain.PaymentMethodGateway:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported payment method %q", method)
	}
}

// Immediate reports whether a method settles at creation time.
// CASH always does; CARD does unless the caller defers confirmation
// to a later terminal acknowledgement.
func Immediate(method string, deferSettlement bool) bool {
	switch method {
	case domain.PaymentMethodCash:
		return true
	case domain.PaymentMethodCard:
		return !deferSettlement
	default:
		return false
	}
}

// VerifySignature checks the provider callback signature:
// sha512(order_id + status_code + gross_amount + serverKey).
func (p *Processor) VerifySignature(n domain.GatewayNotification) error {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + p.serverKey))
	if hex.EncodeToString(sum[:]) != strings.ToLower(n.SignatureKey) {
		return ErrBadSignature
	}
	return nil
}

// MapGatewayStatus translates a provider transaction_status into the
// internal payment status and transaction status. ok is false for
// provider statuses we do not act on.
func MapGatewayStatus(transactionStatus string) (paymentStatus string, txStatus string, ok bool) {
	switch strings.ToLower(transactionStatus) {
	case "settlement", "capture":
		return domain.PaymentStatusPaid, domain.TxStatusCompleted, true
	case "pending":
		return domain.PaymentStatusPending, domain.TxStatusPending, true
	case "deny", "expire", "failure":
		return domain.PaymentStatusFailed, domain.TxStatusFailed, true
	case "cancel":
		return domain.PaymentStatusFailed, domain.TxStatusCancelled, true
	default:
		return "", "", false
	}
}

// NotifyPaid sends the settlement receipt in the background with a
// small bounded retry. Failures are logged and counted, never
// propagated to the settlement path.
func (p *Processor) NotifyPaid(t *domain.Transaction) {
	if t.CustomerPhone == "" {
		return
	}
	text := notify.RenderReceipt(t)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for attempt := 1; attempt <= notifyAttempts; attempt++ {
			if !p.notifier.IsConnected() {
				p.log.Warn().Str("transaction_id", t.ID).Msg("notifier not connected, skipping receipt")
				metrics.NotificationFailures.Inc()
				return
			}
			err := p.notifier.SendMessage(ctx, t.CustomerPhone, text)
			if err == nil {
				return
			}
			p.log.Warn().Err(err).
				Str("transaction_id", t.ID).
				Int("attempt", attempt).
				Msg("receipt delivery failed")
			if attempt < notifyAttempts {
				metrics.NotificationRetries.Inc()
				time.Sleep(notifyBackoff)
			}
		}
		metrics.NotificationFailures.Inc()
	}()
}
