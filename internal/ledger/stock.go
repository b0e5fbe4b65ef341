// Package ledger holds the side-ledgers that settle alongside a
// transaction: product stock, member loyalty points, and voucher
// usage. Each ledger exposes Apply and Reverse operating on the same
// store.Tx as the transaction state change, so a settlement and its
// ledger writes commit or roll back together.
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"kasirpos/internal/domain"
	"kasirpos/internal/store"
)

type StockLedger struct {
	log zerolog.Logger
}

func NewStockLedger(log zerolog.Logger) StockLedger {
	return StockLedger{log: log.With().Str("ledger", "stock").Logger()}
}

// Apply decrements stock for every line item. Stock is allowed to go
// negative (the physical sale already happened); a negative result is
// surfaced as a warning for the inventory team instead of blocking
// settlement.
func (l StockLedger) Apply(ctx context.Context, tx store.Tx, t *domain.Transaction) error {
	for _, item := range t.Items {
		remaining, err := tx.AdjustStock(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock for %s: %w", item.ProductID, err)
		}
		if remaining < 0 {
			l.log.Warn().
				Str("transaction_id", t.ID).
				Str("product_id", item.ProductID).
				Int("stock", remaining).
				Msg("stock went negative after settlement")
		}
	}
	return nil
}

// Reverse restores the exact quantities sold. Callers invoke it only
// for transactions whose stock was actually decremented.
func (l StockLedger) Reverse(ctx context.Context, tx store.Tx, t *domain.Transaction) error {
	for _, item := range t.Items {
		if _, err := tx.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
		}
	}
	return nil
}
