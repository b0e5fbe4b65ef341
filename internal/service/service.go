package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kasirpos/internal/cache"
	"kasirpos/internal/domain"
	"kasirpos/internal/ledger"
	"kasirpos/internal/metrics"
	"kasirpos/internal/settlement"
	"kasirpos/internal/store"
	"kasirpos/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	stock          ledger.StockLedger
	points         ledger.PointsLedger
	vouchers       ledger.VoucherLedger
	settle         *settlement.Processor
	txCache        cache.TransactionCache
	txCacheTTL     time.Duration
	taxRatePercent float64
	log            zerolog.Logger
}

func New(repo store.Repository, processor *settlement.Processor, txCache cache.TransactionCache, taxRatePercent float64, log zerolog.Logger) *Service {
	if txCache == nil {
		txCache = cache.NoopTransactionCache{}
	}
	if taxRatePercent < 0 {
		taxRatePercent = 0
	}

	return &Service{
		repo:           repo,
		stock:          ledger.NewStockLedger(log),
		points:         ledger.NewPointsLedger(log),
		vouchers:       ledger.NewVoucherLedger(log),
		settle:         processor,
		txCache:        txCache,
		txCacheTTL:     5 * time.Minute,
		taxRatePercent: taxRatePercent,
		log:            log.With().Str("component", "service").Logger(),
	}
}

// CreateTransaction records a sale. CASH (and non-deferred CARD)
// settles immediately: the transaction lands COMPLETED/PAID and all
// three side-ledgers are applied in the same store transaction. Every
// other method lands PENDING/PENDING with stock, points and voucher
// untouched until confirmation.
func (s *Service) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: cashier identity required", store.ErrValidation)
	}

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", store.ErrValidation)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("%w: item missing product id", store.ErrValidation)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for %s", store.ErrValidation, item.ProductID)
		}
	}
	if req.ManualDiscount < 0 {
		return nil, fmt.Errorf("%w: manual discount cannot be negative", store.ErrValidation)
	}
	if req.PointsUsed < 0 {
		return nil, fmt.Errorf("%w: points used cannot be negative", store.ErrValidation)
	}
	if req.PointsUsed > 0 && req.MemberID == "" {
		return nil, fmt.Errorf("%w: point redemption requires a member", store.ErrValidation)
	}

	method, err := settlement.NormalizeMethod(req.PaymentMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrValidation, err)
	}
	immediate := settlement.Immediate(method, req.DeferSettlement)

	var created *domain.Transaction
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		items, subtotal, err := s.buildLineItems(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		if req.ReportedSubtotal > 0 && req.ReportedSubtotal != subtotal {
			s.log.Warn().
				Int64("reported", req.ReportedSubtotal).
				Int64("computed", subtotal).
				Msg("client subtotal diverges from price snapshot")
		}

		promoDiscount, err := s.promoDiscount(ctx, tx, subtotal)
		if err != nil {
			return err
		}

		var voucher *domain.Voucher
		var voucherDiscount int64
		if code := strings.TrimSpace(req.VoucherCode); code != "" {
			voucher, err = tx.GetVoucherByCodeForUpdate(ctx, code)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown voucher code %s", store.ErrValidation, code)
			}
			if err != nil {
				return err
			}
			if voucherDiscount, err = voucherValue(voucher, subtotal); err != nil {
				return err
			}
		}

		if req.PointsUsed > 0 {
			member, err := tx.GetMemberForUpdate(ctx, req.MemberID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown member %s", store.ErrValidation, req.MemberID)
			}
			if err != nil {
				return err
			}
			if req.PointsUsed > member.Points {
				return fmt.Errorf("%w: member has %d points, requested %d", store.ErrValidation, member.Points, req.PointsUsed)
			}
		}

		base := subtotal - req.PointsUsed*domain.PointValue - req.ManualDiscount - voucherDiscount - promoDiscount
		taxable := base
		if taxable < 0 {
			taxable = 0
		}
		tax := int64(math.Round(float64(taxable) * s.taxRatePercent / 100))
		finalTotal := base + tax
		if finalTotal < 0 {
			finalTotal = 0
		}

		var pointsEarned int64
		if req.MemberID != "" {
			pointsEarned = finalTotal / domain.PointValue
		}

		now := time.Now().UTC()
		trx := &domain.Transaction{
			ID:              xid.New("trx"),
			CashierID:       actor.Username,
			MemberID:        req.MemberID,
			CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
			Items:           items,
			Subtotal:        subtotal,
			ManualDiscount:  req.ManualDiscount,
			VoucherDiscount: voucherDiscount,
			PromoDiscount:   promoDiscount,
			PointsUsed:      req.PointsUsed,
			PointsEarned:    pointsEarned,
			Tax:             tax,
			FinalTotal:      finalTotal,
			PaymentMethod:   method,
			PaymentStatus:   domain.PaymentStatusPending,
			Status:          domain.TxStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if voucher != nil {
			trx.VoucherID = voucher.ID
			trx.VoucherCode = voucher.Code
		}
		if immediate {
			trx.Status = domain.TxStatusCompleted
			trx.PaymentStatus = domain.PaymentStatusPaid
			trx.PaidAt = &now
		}

		if err := tx.InsertTransaction(ctx, trx); err != nil {
			return err
		}
		if err := tx.AppendTransactionEvent(ctx, domain.TransactionEvent{
			ID:            xid.New("evt"),
			TransactionID: trx.ID,
			Type:          domain.EventCreated,
			ChangedAt:     now,
		}); err != nil {
			return err
		}

		if immediate {
			if err := s.stock.Apply(ctx, tx, trx); err != nil {
				return err
			}
			s.applySideLedgers(ctx, tx, trx)
			if err := tx.AppendTransactionEvent(ctx, domain.TransactionEvent{
				ID:            xid.New("evt"),
				TransactionID: trx.ID,
				Type:          domain.EventConfirmed,
				Amount:        trx.FinalTotal,
				ChangedAt:     now,
			}); err != nil {
				return err
			}
		}

		created = trx
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TransactionsCreated.WithLabelValues(created.PaymentMethod, created.Status).Inc()
	if created.Status == domain.TxStatusCompleted {
		s.settle.NotifyPaid(created)
	}
	return created, nil
}

// GetTransaction serves reads through the snapshot cache.
func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: transaction id required", store.ErrValidation)
	}
	cached, ok, err := s.txCache.Get(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("transaction_id", id).Msg("transaction cache read failed")
	} else if ok {
		return cached, nil
	}

	trx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.txCache.Set(ctx, trx, s.txCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", id).Msg("transaction cache write failed")
	}
	return trx, nil
}

// ConfirmPayment settles a PENDING transaction whose payment arrived
// out of band (bank transfer sighted, QRIS app confirmation, card
// terminal acknowledgement). The method in the URL must match the one
// recorded at creation. Confirming an already COMPLETED transaction
// is a no-op returning the current state.
func (s *Service) ConfirmPayment(ctx context.Context, id string, method string) (*domain.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: transaction id required", store.ErrValidation)
	}
	normalized, err := settlement.NormalizeMethod(method)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrValidation, err)
	}

	var out *domain.Transaction
	settled := false
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trx, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if trx.Status == domain.TxStatusCompleted {
			out = trx
			return nil
		}
		if trx.Status != domain.TxStatusPending {
			return fmt.Errorf("%w: cannot confirm %s transaction", store.ErrConflict, trx.Status)
		}
		if trx.PaymentMethod != normalized {
			return fmt.Errorf("%w: transaction was created with %s, confirmation sent for %s", store.ErrConflict, trx.PaymentMethod, normalized)
		}

		if err := s.settleLocked(ctx, tx, trx); err != nil {
			return err
		}
		if err := tx.AppendTransactionEvent(ctx, domain.TransactionEvent{
			ID:            xid.New("evt"),
			TransactionID: trx.ID,
			Type:          domain.EventConfirmed,
			Amount:        trx.FinalTotal,
			ChangedAt:     trx.UpdatedAt,
		}); err != nil {
			return err
		}
		out = trx
		settled = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled {
		metrics.SettlementsConfirmed.WithLabelValues("cashier").Inc()
		s.invalidateCache(ctx, id)
		s.settle.NotifyPaid(out)
	}
	return out, nil
}

// CancelTransaction cancels a PENDING or COMPLETED transaction. For a
// COMPLETED one, stock, points and voucher usage are all reversed in
// the same store transaction as the state change.
func (s *Service) CancelTransaction(ctx context.Context, id string, reason string) (*domain.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: transaction id required", store.ErrValidation)
	}

	var out *domain.Transaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trx, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if trx.Status != domain.TxStatusPending && trx.Status != domain.TxStatusCompleted {
			return fmt.Errorf("%w: cannot cancel %s transaction", store.ErrConflict, trx.Status)
		}

		wasCompleted := trx.Status == domain.TxStatusCompleted
		if wasCompleted {
			if err := s.stock.Reverse(ctx, tx, trx); err != nil {
				return err
			}
			s.reverseSideLedgers(ctx, tx, trx)
		}

		now := time.Now().UTC()
		trx.Status = domain.TxStatusCancelled
		trx.PaymentStatus = domain.PaymentStatusCancelled
		trx.FailureReason = reason
		trx.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, trx); err != nil {
			return err
		}
		if err := tx.AppendTransactionEvent(ctx, domain.TransactionEvent{
			ID:            xid.New("evt"),
			TransactionID: trx.ID,
			Type:          domain.EventCancelled,
			Reason:        reason,
			ChangedAt:     now,
		}); err != nil {
			return err
		}
		out = trx
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Reversals.WithLabelValues("cancel").Inc()
	s.invalidateCache(ctx, id)
	return out, nil
}

// RefundTransaction refunds a COMPLETED transaction in full,
// reversing all side-ledgers and recording the external refund
// reference on the event trail. Admin only.
func (s *Service) RefundTransaction(ctx context.Context, id string, refundRef string, reason string) (*domain.Transaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: transaction id required", store.ErrValidation)
	}
	if strings.TrimSpace(refundRef) == "" {
		return nil, fmt.Errorf("%w: refund reference required", store.ErrValidation)
	}

	var out *domain.Transaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trx, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if trx.Status != domain.TxStatusCompleted {
			return fmt.Errorf("%w: cannot refund %s transaction", store.ErrConflict, trx.Status)
		}

		if err := s.stock.Reverse(ctx, tx, trx); err != nil {
			return err
		}
		s.reverseSideLedgers(ctx, tx, trx)

		// the reason lives on the REFUNDED event; failure_reason is
		// reserved for cancellations
		now := time.Now().UTC()
		trx.Status = domain.TxStatusRefunded
		trx.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, trx); err != nil {
			return err
		}
		if err := tx.AppendTransactionEvent(ctx, domain.TransactionEvent{
			ID:            xid.New("evt"),
			TransactionID: trx.ID,
			Type:          domain.EventRefunded,
			Reason:        reason,
			RefundRef:     refundRef,
			Amount:        trx.FinalTotal,
			ChangedAt:     now,
		}); err != nil {
			return err
		}
		out = trx
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Reversals.WithLabelValues("refund").Inc()
	s.invalidateCache(ctx, id)
	return out, nil
}

// HandleGatewayNotification processes a signed payment-provider
// callback. Stock and side-ledgers move only on the edge into PAID
// and are reversed on the edge out of PAID into a failed state.
// Duplicate and out-of-order deliveries are tolerated; manual
// terminal states (CANCELLED, REFUNDED) are never overridden by the
// provider.
func (s *Service) HandleGatewayNotification(ctx context.Context, n domain.GatewayNotification) (*domain.Transaction, error) {
	if err := s.settle.VerifySignature(n); err != nil {
		metrics.GatewayCallbacks.WithLabelValues("bad_signature").Inc()
		return nil, err
	}

	paymentStatus, txStatus, known := settlement.MapGatewayStatus(n.TransactionStatus)
	if !known {
		s.log.Info().
			Str("order_id", n.OrderID).
			Str("transaction_status", n.TransactionStatus).
			Msg("ignoring unhandled gateway status")
		metrics.GatewayCallbacks.WithLabelValues("ignored").Inc()
		return s.repo.GetTransaction(ctx, n.OrderID)
	}

	var out *domain.Transaction
	paidEdge := false
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trx, err := tx.GetTransactionForUpdate(ctx, n.OrderID)
		if err != nil {
			return err
		}
		if trx.Status == domain.TxStatusCancelled || trx.Status == domain.TxStatusRefunded {
			out = trx
			return nil
		}
		wasPaid := trx.PaymentStatus == domain.PaymentStatusPaid
		if trx.PaymentStatus == paymentStatus && trx.Status == txStatus {
			out = trx
			return nil
		}
		// a late "pending" after settlement is out-of-order noise
		if wasPaid && paymentStatus == domain.PaymentStatusPending {
			out = trx
			return nil
		}

		now := time.Now().UTC()
		if paymentStatus == domain.PaymentStatusPaid {
			trx.FailureReason = ""
			if err := s.settleLocked(ctx, tx, trx); err != nil {
				return err
			}
			paidEdge = true
		} else {
			trx.PaymentStatus = paymentStatus
			trx.Status = txStatus
			trx.UpdatedAt = now
			if paymentStatus == domain.PaymentStatusFailed {
				trx.FailureReason = strings.ToLower(n.TransactionStatus)
				if wasPaid {
					if err := s.stock.Reverse(ctx, tx, trx); err != nil {
						return err
					}
					s.reverseSideLedgers(ctx, tx, trx)
				}
			}
			if err := tx.UpdateTransaction(ctx, trx); err != nil {
				return err
			}
		}
		if err := tx.AppendTransactionEvent(ctx, domain.TransactionEvent{
			ID:            xid.New("evt"),
			TransactionID: trx.ID,
			Type:          domain.EventGateway,
			Reason:        strings.ToLower(n.TransactionStatus),
			ChangedAt:     now,
		}); err != nil {
			return err
		}
		out = trx
		return nil
	})
	if err != nil {
		metrics.GatewayCallbacks.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.GatewayCallbacks.WithLabelValues("applied").Inc()
	s.invalidateCache(ctx, n.OrderID)
	if paidEdge {
		metrics.SettlementsConfirmed.WithLabelValues("gateway").Inc()
		s.settle.NotifyPaid(out)
	}
	return out, nil
}

func (s *Service) buildLineItems(ctx context.Context, tx store.Tx, reqs []domain.TransactionItemRequest) ([]domain.LineItem, int64, error) {
	qtyByID := make(map[string]int, len(reqs))
	order := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if _, seen := qtyByID[r.ProductID]; !seen {
			order = append(order, r.ProductID)
		}
		qtyByID[r.ProductID] += r.Quantity
	}

	products, err := tx.GetProductsForUpdate(ctx, order)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", store.ErrValidation, err)
	}
	if err != nil {
		return nil, 0, err
	}

	items := make([]domain.LineItem, 0, len(order))
	var subtotal int64
	for _, id := range order {
		p := products[id]
		if !p.Active {
			return nil, 0, fmt.Errorf("%w: product %s is inactive", store.ErrValidation, id)
		}
		qty := qtyByID[id]
		line := domain.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  qty,
			Subtotal:  p.Price * int64(qty),
		}
		items = append(items, line)
		subtotal += line.Subtotal
	}
	return items, subtotal, nil
}

// promoDiscount applies the single best matching active promo rule.
func (s *Service) promoDiscount(ctx context.Context, tx store.Tx, subtotal int64) (int64, error) {
	promos, err := tx.ListActivePromos(ctx)
	if err != nil {
		return 0, err
	}
	var best int64
	for _, p := range promos {
		if subtotal < p.MinSubtotal {
			continue
		}
		var d int64
		switch p.Type {
		case domain.PromoTypePercent:
			d = int64(math.Round(float64(subtotal) * p.DiscountPercent / 100))
		case domain.PromoTypeFlat:
			d = p.FlatDiscount
		}
		if d > best {
			best = d
		}
	}
	return best, nil
}

func voucherValue(v *domain.Voucher, subtotal int64) (int64, error) {
	if !v.Active {
		return 0, fmt.Errorf("%w: voucher %s is inactive", store.ErrValidation, v.Code)
	}
	if v.ExpiresAt != nil && time.Now().UTC().After(*v.ExpiresAt) {
		return 0, fmt.Errorf("%w: voucher %s expired", store.ErrValidation, v.Code)
	}
	if v.RemainingUses < 1 {
		return 0, fmt.Errorf("%w: voucher %s exhausted", store.ErrValidation, v.Code)
	}
	if subtotal < v.MinPurchase {
		return 0, fmt.Errorf("%w: voucher %s requires minimum purchase of %d", store.ErrValidation, v.Code, v.MinPurchase)
	}

	var discount int64
	switch v.Type {
	case domain.VoucherTypePercent:
		discount = int64(math.Round(float64(subtotal) * float64(v.Value) / 100))
		if v.MaxDiscount > 0 && discount > v.MaxDiscount {
			discount = v.MaxDiscount
		}
	case domain.VoucherTypeFixed:
		discount = v.Value
	case domain.VoucherTypeFreeShipping:
		// value holds the covered delivery-fee amount
		discount = v.Value
		if v.MaxDiscount > 0 && discount > v.MaxDiscount {
			discount = v.MaxDiscount
		}
	default:
		return 0, fmt.Errorf("%w: voucher %s has unknown type", store.ErrValidation, v.Code)
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}

// settleLocked flips a row-locked PENDING transaction into
// COMPLETED/PAID and applies stock plus the side-ledgers. The cashier
// confirmation and the gateway callback both settle through here, so
// the two trigger paths cannot diverge.
func (s *Service) settleLocked(ctx context.Context, tx store.Tx, trx *domain.Transaction) error {
	now := time.Now().UTC()
	trx.Status = domain.TxStatusCompleted
	trx.PaymentStatus = domain.PaymentStatusPaid
	trx.PaidAt = &now
	trx.UpdatedAt = now
	if err := tx.UpdateTransaction(ctx, trx); err != nil {
		return err
	}
	if err := s.stock.Apply(ctx, tx, trx); err != nil {
		return err
	}
	s.applySideLedgers(ctx, tx, trx)
	return nil
}

// applySideLedgers settles points and voucher usage. Failures here
// are logged and swallowed: the paid sale stands even when a loyalty
// write misbehaves.
func (s *Service) applySideLedgers(ctx context.Context, tx store.Tx, trx *domain.Transaction) {
	if err := s.points.Apply(ctx, tx, trx); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", trx.ID).Msg("points ledger apply failed")
	}
	if err := s.vouchers.Apply(ctx, tx, trx); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", trx.ID).Msg("voucher ledger apply failed")
	}
}

func (s *Service) reverseSideLedgers(ctx context.Context, tx store.Tx, trx *domain.Transaction) {
	if err := s.points.Reverse(ctx, tx, trx); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", trx.ID).Msg("points ledger reverse failed")
	}
	if err := s.vouchers.Reverse(ctx, tx, trx); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", trx.ID).Msg("voucher ledger reverse failed")
	}
}

func (s *Service) invalidateCache(ctx context.Context, id string) {
	if err := s.txCache.Delete(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", id).Msg("transaction cache invalidation failed")
	}
}
