package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirpos/internal/domain"
	"kasirpos/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx so row scanning
// helpers can serve the read path and the transactional path.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WithinTx runs fn inside one serializable database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(ctx, &dbTx{tx: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit()
}

type dbTx struct {
	tx *sql.Tx
}

const transactionColumns = `
	id, cashier_id, member_id, customer_phone, subtotal, manual_discount,
	voucher_id, voucher_code, voucher_discount, promo_discount,
	points_used, points_earned, tax, final_total,
	payment_method, payment_status, status, failure_reason,
	paid_at, created_at, updated_at`

func scanTransaction(row interface{ Scan(dest ...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	var memberID, customerPhone, voucherID, voucherCode, failureReason sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.CashierID, &memberID, &customerPhone, &t.Subtotal, &t.ManualDiscount,
		&voucherID, &voucherCode, &t.VoucherDiscount, &t.PromoDiscount,
		&t.PointsUsed, &t.PointsEarned, &t.Tax, &t.FinalTotal,
		&t.PaymentMethod, &t.PaymentStatus, &t.Status, &failureReason,
		&paidAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.MemberID = memberID.String
	t.CustomerPhone = customerPhone.String
	t.VoucherID = voucherID.String
	t.VoucherCode = voucherCode.String
	t.FailureReason = failureReason.String
	if paidAt.Valid {
		utc := paidAt.Time.UTC()
		t.PaidAt = &utc
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func loadLineItems(ctx context.Context, q queryer, transactionID string) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, name, price, qty, subtotal
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY position
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0, 8)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func loadEvents(ctx context.Context, q queryer, transactionID string) ([]domain.TransactionEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, type, reason, refund_ref, amount, changed_at
		FROM transaction_events
		WHERE transaction_id = $1
		ORDER BY changed_at, id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.TransactionEvent, 0, 4)
	for rows.Next() {
		var e domain.TransactionEvent
		var reason, refundRef sql.NullString
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Type, &reason, &refundRef, &e.Amount, &e.ChangedAt); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		e.RefundRef = refundRef.String
		e.ChangedAt = e.ChangedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func getTransaction(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTransaction(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if t.Items, err = loadLineItems(ctx, q, id); err != nil {
		return nil, err
	}
	if t.Events, err = loadEvents(ctx, q, id); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *dbTx) InsertTransaction(ctx context.Context, trx *domain.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, cashier_id, member_id, customer_phone, subtotal, manual_discount,
			voucher_id, voucher_code, voucher_discount, promo_discount,
			points_used, points_earned, tax, final_total,
			payment_method, payment_status, status, failure_reason,
			paid_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, trx.ID, trx.CashierID, nullIfEmpty(trx.MemberID), nullIfEmpty(trx.CustomerPhone),
		trx.Subtotal, trx.ManualDiscount,
		nullIfEmpty(trx.VoucherID), nullIfEmpty(trx.VoucherCode), trx.VoucherDiscount, trx.PromoDiscount,
		trx.PointsUsed, trx.PointsEarned, trx.Tax, trx.FinalTotal,
		trx.PaymentMethod, trx.PaymentStatus, trx.Status, nullIfEmpty(trx.FailureReason),
		nullTime(trx.PaidAt), trx.CreatedAt, trx.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s already exists", store.ErrConflict, trx.ID)
		}
		return err
	}

	for pos, item := range trx.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, position, product_id, name, price, qty, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, trx.ID, pos, item.ProductID, item.Name, item.Price, item.Quantity, item.Subtotal)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *dbTx) GetTransactionForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, t.tx, id, true)
}

func (t *dbTx) UpdateTransaction(ctx context.Context, trx *domain.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET payment_status = $2, status = $3, failure_reason = $4, paid_at = $5, updated_at = $6
		WHERE id = $1
	`, trx.ID, trx.PaymentStatus, trx.Status, nullIfEmpty(trx.FailureReason), nullTime(trx.PaidAt), trx.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *dbTx) AppendTransactionEvent(ctx context.Context, event domain.TransactionEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transaction_events (id, transaction_id, type, reason, refund_ref, amount, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, event.ID, event.TransactionID, event.Type, nullIfEmpty(event.Reason), nullIfEmpty(event.RefundRef), event.Amount, event.ChangedAt)
	return err
}

func (t *dbTx) GetProductsForUpdate(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, name, category, price, stock, active, created_at
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
	}
	return result, nil
}

func (t *dbTx) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
		RETURNING stock
	`, productID, delta).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	return stock, err
}

func (t *dbTx) GetMemberForUpdate(ctx context.Context, id string) (*domain.Member, error) {
	var m domain.Member
	var lastVisit sql.NullTime
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, phone, points, total_spent, last_visit, created_at
		FROM members
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&m.ID, &m.Name, &m.Phone, &m.Points, &m.TotalSpent, &lastVisit, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: member %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		utc := lastVisit.Time.UTC()
		m.LastVisit = &utc
	}
	return &m, nil
}

func (t *dbTx) UpdateMember(ctx context.Context, member *domain.Member) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE members
		SET points = $2, total_spent = $3, last_visit = $4, updated_at = now()
		WHERE id = $1
	`, member.ID, member.Points, member.TotalSpent, nullTime(member.LastVisit))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *dbTx) AppendPointHistory(ctx context.Context, entry domain.PointHistory) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO point_history (id, member_id, transaction_id, points, type, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.MemberID, nullIfEmpty(entry.TransactionID), entry.Points, entry.Type, entry.Description, entry.CreatedAt)
	return err
}

func scanVoucher(row interface{ Scan(dest ...any) error }) (*domain.Voucher, error) {
	var v domain.Voucher
	var expiresAt sql.NullTime
	err := row.Scan(&v.ID, &v.Code, &v.Type, &v.Value, &v.MinPurchase, &v.MaxDiscount,
		&v.RemainingUses, &v.Active, &expiresAt, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		utc := expiresAt.Time.UTC()
		v.ExpiresAt = &utc
	}
	return &v, nil
}

func (t *dbTx) GetVoucherByCodeForUpdate(ctx context.Context, code string) (*domain.Voucher, error) {
	return scanVoucher(t.tx.QueryRowContext(ctx, `
		SELECT id, code, type, value, min_purchase, max_discount, remaining_uses, active, expires_at, created_at
		FROM vouchers
		WHERE upper(code) = upper($1)
		FOR UPDATE
	`, strings.TrimSpace(code)))
}

func (t *dbTx) AdjustVoucherRemaining(ctx context.Context, voucherID string, delta int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE vouchers
		SET remaining_uses = remaining_uses + $2, updated_at = now()
		WHERE id = $1
	`, voucherID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: voucher %s", store.ErrNotFound, voucherID)
	}
	return nil
}

func (t *dbTx) InsertVoucherUsage(ctx context.Context, usage domain.VoucherUsage) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO voucher_usages (id, voucher_id, transaction_id, discount_amount, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, usage.ID, usage.VoucherID, usage.TransactionID, usage.DiscountAmount, usage.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: voucher already used on transaction %s", store.ErrConflict, usage.TransactionID)
	}
	return err
}

func (t *dbTx) DeleteVoucherUsage(ctx context.Context, transactionID string) (*domain.VoucherUsage, error) {
	var usage domain.VoucherUsage
	err := t.tx.QueryRowContext(ctx, `
		DELETE FROM voucher_usages
		WHERE transaction_id = $1
		RETURNING id, voucher_id, transaction_id, discount_amount, created_at
	`, transactionID).Scan(&usage.ID, &usage.VoucherID, &usage.TransactionID, &usage.DiscountAmount, &usage.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func scanShift(row interface{ Scan(dest ...any) error }) (*domain.CashierShift, error) {
	var sh domain.CashierShift
	var endTime sql.NullTime
	err := row.Scan(&sh.ID, &sh.CashierID, &sh.OpeningBalance, &sh.ClosingBalance,
		&sh.PhysicalCash, &sh.ExpectedCash, &sh.Difference, &sh.Status, &sh.StartTime, &endTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		utc := endTime.Time.UTC()
		sh.EndTime = &utc
	}
	sh.StartTime = sh.StartTime.UTC()
	return &sh, nil
}

const shiftColumns = `
	id, cashier_id, opening_balance, closing_balance, physical_cash,
	expected_cash, difference, status, start_time, end_time`

func (t *dbTx) InsertShift(ctx context.Context, shift *domain.CashierShift) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cashier_shifts (
			id, cashier_id, opening_balance, closing_balance, physical_cash,
			expected_cash, difference, status, start_time, end_time
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, shift.ID, shift.CashierID, shift.OpeningBalance, shift.ClosingBalance, shift.PhysicalCash,
		shift.ExpectedCash, shift.Difference, shift.Status, shift.StartTime, nullTime(shift.EndTime))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: cashier %s already has an open shift", store.ErrConflict, shift.CashierID)
	}
	return err
}

func (t *dbTx) GetOpenShiftForUpdate(ctx context.Context, cashierID string) (*domain.CashierShift, error) {
	return scanShift(t.tx.QueryRowContext(ctx, `
		SELECT`+shiftColumns+`
		FROM cashier_shifts
		WHERE cashier_id = $1 AND status = $2
		FOR UPDATE
	`, cashierID, domain.ShiftStatusOpen))
}

func (t *dbTx) UpdateShift(ctx context.Context, shift *domain.CashierShift) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cashier_shifts
		SET closing_balance = $2, physical_cash = $3, expected_cash = $4,
		    difference = $5, status = $6, end_time = $7
		WHERE id = $1
	`, shift.ID, shift.ClosingBalance, shift.PhysicalCash, shift.ExpectedCash,
		shift.Difference, shift.Status, nullTime(shift.EndTime))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *dbTx) AppendShiftLog(ctx context.Context, entry domain.CashierShiftLog) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cashier_shift_logs (id, shift_id, action, detail, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.ShiftID, entry.Action, entry.Detail, entry.CreatedAt)
	return err
}

func (t *dbTx) CountPendingTransactions(ctx context.Context, cashierID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT count(*)
		FROM transactions
		WHERE cashier_id = $1 AND status = $2
	`, cashierID, domain.TxStatusPending).Scan(&count)
	return count, err
}

func (t *dbTx) AggregateShiftWindow(ctx context.Context, cashierID string, from time.Time, to time.Time) (*domain.ShiftTotals, error) {
	totals := &domain.ShiftTotals{
		PaymentBreakdown: make(map[string]domain.MethodTotal),
		StatusCounts:     make(map[string]int64),
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT status, count(*)
		FROM transactions
		WHERE cashier_id = $1 AND created_at >= $2 AND created_at <= $3
		GROUP BY status
	`, cashierID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		totals.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = t.tx.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(sum(final_total), 0),
		       coalesce(sum(final_total) FILTER (WHERE payment_method = $4), 0),
		       coalesce(sum(manual_discount), 0),
		       coalesce(sum(voucher_discount), 0),
		       coalesce(sum(promo_discount), 0),
		       coalesce(sum(tax), 0),
		       coalesce(sum(points_used), 0),
		       coalesce(sum(points_earned), 0)
		FROM transactions
		WHERE cashier_id = $1 AND created_at >= $2 AND created_at <= $3 AND status = $5
	`, cashierID, from, to, domain.PaymentMethodCash, domain.TxStatusCompleted).Scan(
		&totals.CompletedTransactions, &totals.CompletedSales, &totals.CashSales,
		&totals.ManualDiscountTotal, &totals.VoucherDiscountTotal, &totals.PromoDiscountTotal,
		&totals.TaxTotal, &totals.PointsUsedTotal, &totals.PointsEarnedTotal)
	if err != nil {
		return nil, err
	}

	err = t.tx.QueryRowContext(ctx, `
		SELECT coalesce(sum(ti.qty), 0)
		FROM transaction_items ti
		JOIN transactions tr ON tr.id = ti.transaction_id
		WHERE tr.cashier_id = $1 AND tr.created_at >= $2 AND tr.created_at <= $3 AND tr.status = $4
	`, cashierID, from, to, domain.TxStatusCompleted).Scan(&totals.ItemsSold)
	if err != nil {
		return nil, err
	}

	rows, err = t.tx.QueryContext(ctx, `
		SELECT payment_method, count(*), coalesce(sum(final_total), 0)
		FROM transactions
		WHERE cashier_id = $1 AND created_at >= $2 AND created_at <= $3 AND status = $4
		GROUP BY payment_method
	`, cashierID, from, to, domain.TxStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var method string
		var mt domain.MethodTotal
		if err := rows.Scan(&method, &mt.Count, &mt.Total); err != nil {
			return nil, err
		}
		totals.PaymentBreakdown[method] = mt
	}
	return totals, rows.Err()
}

func (t *dbTx) ListActivePromos(ctx context.Context) ([]domain.PromoRule, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, name, type, min_subtotal, discount_percent, flat_discount, active, created_at
		FROM promo_rules
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.PromoRule, 0, 8)
	for rows.Next() {
		var p domain.PromoRule
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.MinSubtotal, &p.DiscountPercent, &p.FlatDiscount, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, id, false)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, stock, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	var m domain.Member
	var lastVisit sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, points, total_spent, last_visit, created_at
		FROM members
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Phone, &m.Points, &m.TotalSpent, &lastVisit, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		utc := lastVisit.Time.UTC()
		m.LastVisit = &utc
	}
	return &m, nil
}

func (s *Store) ListPointHistory(ctx context.Context, memberID string, limit int) ([]domain.PointHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, coalesce(transaction_id, ''), points, type, description, created_at
		FROM point_history
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.PointHistory, 0, limit)
	for rows.Next() {
		var e domain.PointHistory
		if err := rows.Scan(&e.ID, &e.MemberID, &e.TransactionID, &e.Points, &e.Type, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	return scanVoucher(s.db.QueryRowContext(ctx, `
		SELECT id, code, type, value, min_purchase, max_discount, remaining_uses, active, expires_at, created_at
		FROM vouchers
		WHERE upper(code) = upper($1)
	`, strings.TrimSpace(code)))
}

func (s *Store) GetOpenShift(ctx context.Context, cashierID string) (*domain.CashierShift, error) {
	return scanShift(s.db.QueryRowContext(ctx, `
		SELECT`+shiftColumns+`
		FROM cashier_shifts
		WHERE cashier_id = $1 AND status = $2
	`, cashierID, domain.ShiftStatusOpen))
}

func (s *Store) ListShiftLogs(ctx context.Context, shiftID string, limit int) ([]domain.CashierShiftLog, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shift_id, action, detail, created_at
		FROM cashier_shift_logs
		WHERE shift_id = $1
		ORDER BY created_at
		LIMIT $2
	`, shiftID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.CashierShiftLog, 0, 16)
	for rows.Next() {
		var entry domain.CashierShiftLog
		if err := rows.Scan(&entry.ID, &entry.ShiftID, &entry.Action, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username %s taken", store.ErrConflict, user.Username)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
