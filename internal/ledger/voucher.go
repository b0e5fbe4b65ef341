package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kasirpos/internal/domain"
	"kasirpos/internal/store"
	"kasirpos/internal/xid"
)

type VoucherLedger struct {
	log zerolog.Logger
}

func NewVoucherLedger(log zerolog.Logger) VoucherLedger {
	return VoucherLedger{log: log.With().Str("ledger", "voucher").Logger()}
}

// Apply records one voucher use and consumes a remaining-use slot.
func (l VoucherLedger) Apply(ctx context.Context, tx store.Tx, t *domain.Transaction) error {
	if t.VoucherID == "" {
		return nil
	}
	if err := tx.InsertVoucherUsage(ctx, domain.VoucherUsage{
		ID:             xid.New("vus"),
		VoucherID:      t.VoucherID,
		TransactionID:  t.ID,
		DiscountAmount: t.VoucherDiscount,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("record voucher usage: %w", err)
	}
	if err := tx.AdjustVoucherRemaining(ctx, t.VoucherID, -1); err != nil {
		return fmt.Errorf("consume voucher %s: %w", t.VoucherID, err)
	}
	return nil
}

// Reverse deletes the usage row and restores the use slot. Safe to
// call when no usage was ever recorded.
func (l VoucherLedger) Reverse(ctx context.Context, tx store.Tx, t *domain.Transaction) error {
	if t.VoucherID == "" {
		return nil
	}
	usage, err := tx.DeleteVoucherUsage(ctx, t.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete voucher usage: %w", err)
	}
	if err := tx.AdjustVoucherRemaining(ctx, usage.VoucherID, 1); err != nil {
		return fmt.Errorf("restore voucher %s: %w", usage.VoucherID, err)
	}
	return nil
}
