// Package notify delivers customer-facing receipts for settled
// transactions. Delivery is best effort: a sale is never rolled back
// because a message could not be sent.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"kasirpos/internal/domain"
)

type Notifier interface {
	IsConnected() bool
	SendMessage(ctx context.Context, destination string, text string) error
}

// LogNotifier writes messages to the log instead of a real channel.
// It stands in when no messaging provider is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) IsConnected() bool { return true }

func (n *LogNotifier) SendMessage(_ context.Context, destination string, text string) error {
	n.log.Info().Str("destination", destination).Str("text", text).Msg("notification sent")
	return nil
}

// RenderReceipt formats the plain-text receipt sent after settlement.
func RenderReceipt(t *domain.Transaction) string {
	var b strings.Builder
	b.WriteString("Terima kasih atas pembelian Anda!\n")
	fmt.Fprintf(&b, "Transaksi %s\n", t.ID)
	for _, item := range t.Items {
		fmt.Fprintf(&b, "%s x%d = Rp%d\n", item.Name, item.Quantity, item.Subtotal)
	}
	if t.ManualDiscount > 0 {
		fmt.Fprintf(&b, "Diskon: Rp%d\n", t.ManualDiscount)
	}
	if t.VoucherDiscount > 0 {
		fmt.Fprintf(&b, "Voucher %s: Rp%d\n", t.VoucherCode, t.VoucherDiscount)
	}
	if t.PromoDiscount > 0 {
		fmt.Fprintf(&b, "Promo: Rp%d\n", t.PromoDiscount)
	}
	if t.PointsUsed > 0 {
		fmt.Fprintf(&b, "Poin dipakai: %d\n", t.PointsUsed)
	}
	fmt.Fprintf(&b, "Total: Rp%d (%s)\n", t.FinalTotal, t.PaymentMethod)
	if t.PointsEarned > 0 {
		fmt.Fprintf(&b, "Poin diperoleh: %d\n", t.PointsEarned)
	}
	return b.String()
}
