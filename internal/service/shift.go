package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kasirpos/internal/domain"
	"kasirpos/internal/metrics"
	"kasirpos/internal/store"
	"kasirpos/internal/xid"
)

// OpenShift starts a cashier shift with the counted opening float.
// One open shift per cashier; opening a second one is a conflict.
func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (*domain.CashierShift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: cashier identity required", store.ErrValidation)
	}
	if req.OpeningBalance < 0 {
		return nil, fmt.Errorf("%w: opening balance cannot be negative", store.ErrValidation)
	}

	var opened *domain.CashierShift
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetOpenShiftForUpdate(ctx, actor.Username); err == nil {
			return fmt.Errorf("%w: cashier %s already has an open shift", store.ErrConflict, actor.Username)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		shift := &domain.CashierShift{
			ID:             xid.New("sft"),
			CashierID:      actor.Username,
			OpeningBalance: req.OpeningBalance,
			Status:         domain.ShiftStatusOpen,
			StartTime:      now,
		}
		if err := tx.InsertShift(ctx, shift); err != nil {
			return err
		}
		if err := tx.AppendShiftLog(ctx, domain.CashierShiftLog{
			ID:      xid.New("slg"),
			ShiftID: shift.ID,
			Action:  domain.ShiftActionOpen,
			Detail: shiftLogDetail(map[string]any{
				"opening_balance": req.OpeningBalance,
			}),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		opened = shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// CloseShift reconciles and closes the caller's open shift. Closing
// is refused while the cashier still has PENDING transactions; those
// must be confirmed or cancelled first, otherwise the drawer count
// could never match the books.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (*domain.ShiftCloseReport, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: cashier identity required", store.ErrValidation)
	}
	if req.ClosingBalance < 0 {
		return nil, fmt.Errorf("%w: closing balance cannot be negative", store.ErrValidation)
	}

	var report *domain.ShiftCloseReport
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		shift, err := tx.GetOpenShiftForUpdate(ctx, actor.Username)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no open shift for %s", store.ErrNotFound, actor.Username)
		}
		if err != nil {
			return err
		}

		pending, err := tx.CountPendingTransactions(ctx, actor.Username)
		if err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("%w: %d pending transactions must be confirmed or cancelled before closing", store.ErrConflict, pending)
		}

		now := time.Now().UTC()
		totals, err := tx.AggregateShiftWindow(ctx, actor.Username, shift.StartTime, now)
		if err != nil {
			return err
		}

		expectedCash := shift.OpeningBalance + totals.CashSales
		difference := req.ClosingBalance - expectedCash

		shift.Status = domain.ShiftStatusClosed
		shift.EndTime = &now
		shift.ClosingBalance = req.ClosingBalance
		shift.PhysicalCash = req.ClosingBalance
		shift.ExpectedCash = expectedCash
		shift.Difference = difference
		if err := tx.UpdateShift(ctx, shift); err != nil {
			return err
		}
		if err := tx.AppendShiftLog(ctx, domain.CashierShiftLog{
			ID:      xid.New("slg"),
			ShiftID: shift.ID,
			Action:  domain.ShiftActionClose,
			Detail: shiftLogDetail(map[string]any{
				"opening_balance": shift.OpeningBalance,
				"cash_sales":      totals.CashSales,
				"expected_cash":   expectedCash,
				"physical_cash":   req.ClosingBalance,
				"difference":      difference,
			}),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		report = &domain.ShiftCloseReport{
			ShiftID:        shift.ID,
			CashierID:      shift.CashierID,
			StartTime:      shift.StartTime,
			EndTime:        now,
			OpeningBalance: shift.OpeningBalance,
			ExpectedCash:   expectedCash,
			PhysicalCash:   req.ClosingBalance,
			Difference:     difference,
			Totals:         *totals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if logs, err := s.repo.ListShiftLogs(ctx, report.ShiftID, 0); err == nil {
		report.Logs = logs
	} else {
		s.log.Warn().Err(err).Str("shift_id", report.ShiftID).Msg("shift log lookup failed")
	}

	metrics.ShiftsClosed.Inc()
	diff := report.Difference
	if diff < 0 {
		diff = -diff
	}
	metrics.ShiftCashDifference.Observe(float64(diff))
	if report.Difference != 0 {
		s.log.Warn().
			Str("shift_id", report.ShiftID).
			Str("cashier_id", report.CashierID).
			Int64("difference", report.Difference).
			Msg("cash drawer difference at shift close")
	}
	return report, nil
}

// shiftLogDetail snapshots the reconciliation inputs as JSON so the
// log entry stays machine-readable.
func shiftLogDetail(fields map[string]any) string {
	out, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprintf("%v", fields)
	}
	return string(out)
}

// CurrentShift returns the caller's open shift, if any.
func (s *Service) CurrentShift(ctx context.Context) (*domain.CashierShift, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: cashier identity required", store.ErrValidation)
	}
	return s.repo.GetOpenShift(ctx, actor.Username)
}
