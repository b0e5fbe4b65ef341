package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kasirpos/internal/domain"
	"kasirpos/internal/store"
	"kasirpos/internal/xid"
)

type PointsLedger struct {
	log zerolog.Logger
}

func NewPointsLedger(log zerolog.Logger) PointsLedger {
	return PointsLedger{log: log.With().Str("ledger", "points").Logger()}
}

// Apply settles the loyalty side of a paid transaction: redeemed
// points are deducted, earned points credited, and the member's spend
// counters refreshed. No-op for anonymous sales.
func (l PointsLedger) Apply(ctx context.Context, tx store.Tx, t *domain.Transaction) error {
	if t.MemberID == "" {
		return nil
	}
	member, err := tx.GetMemberForUpdate(ctx, t.MemberID)
	if err != nil {
		return fmt.Errorf("load member %s: %w", t.MemberID, err)
	}
	now := time.Now().UTC()
	member.Points += t.PointsEarned - t.PointsUsed
	member.TotalSpent += t.FinalTotal
	member.LastVisit = &now
	if err := tx.UpdateMember(ctx, member); err != nil {
		return fmt.Errorf("update member %s: %w", t.MemberID, err)
	}
	if t.PointsUsed > 0 {
		if err := tx.AppendPointHistory(ctx, domain.PointHistory{
			ID:            xid.New("pts"),
			MemberID:      t.MemberID,
			TransactionID: t.ID,
			Points:        -t.PointsUsed,
			Type:          domain.PointTypeUsed,
			Description:   "points redeemed at checkout",
			CreatedAt:     now,
		}); err != nil {
			return err
		}
	}
	if t.PointsEarned > 0 {
		if err := tx.AppendPointHistory(ctx, domain.PointHistory{
			ID:            xid.New("pts"),
			MemberID:      t.MemberID,
			TransactionID: t.ID,
			Points:        t.PointsEarned,
			Type:          domain.PointTypeEarned,
			Description:   "points earned from sale",
			CreatedAt:     now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Reverse undoes Apply after a cancellation or refund. History rows
// are never deleted; compensating ADJUSTED entries keep the point
// trail append-only.
func (l PointsLedger) Reverse(ctx context.Context, tx store.Tx, t *domain.Transaction) error {
	if t.MemberID == "" {
		return nil
	}
	member, err := tx.GetMemberForUpdate(ctx, t.MemberID)
	if err != nil {
		return fmt.Errorf("load member %s: %w", t.MemberID, err)
	}
	now := time.Now().UTC()
	member.Points += t.PointsUsed - t.PointsEarned
	member.TotalSpent -= t.FinalTotal
	if err := tx.UpdateMember(ctx, member); err != nil {
		return fmt.Errorf("update member %s: %w", t.MemberID, err)
	}
	if t.PointsEarned > 0 {
		if err := tx.AppendPointHistory(ctx, domain.PointHistory{
			ID:            xid.New("pts"),
			MemberID:      t.MemberID,
			TransactionID: t.ID,
			Points:        -t.PointsEarned,
			Type:          domain.PointTypeAdjusted,
			Description:   "earned points reversed",
			CreatedAt:     now,
		}); err != nil {
			return err
		}
	}
	if t.PointsUsed > 0 {
		if err := tx.AppendPointHistory(ctx, domain.PointHistory{
			ID:            xid.New("pts"),
			MemberID:      t.MemberID,
			TransactionID: t.ID,
			Points:        t.PointsUsed,
			Type:          domain.PointTypeAdjusted,
			Description:   "redeemed points restored",
			CreatedAt:     now,
		}); err != nil {
			return err
		}
	}
	return nil
}
