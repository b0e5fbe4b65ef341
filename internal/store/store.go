package store

import (
	"context"
	"errors"
	"time"

	"kasirpos/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid request")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// Tx is the unit-of-work surface handed to WithinTx callbacks. Every
// ForUpdate method takes a row lock for the duration of the enclosing
// transaction; callers must acquire locks in a consistent order
// (transaction, products, member, voucher, shift) to avoid deadlocks.
type Tx interface {
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransactionForUpdate(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error
	AppendTransactionEvent(ctx context.Context, event domain.TransactionEvent) error

	GetProductsForUpdate(ctx context.Context, ids []string) (map[string]domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) (int, error)

	GetMemberForUpdate(ctx context.Context, id string) (*domain.Member, error)
	UpdateMember(ctx context.Context, member *domain.Member) error
	AppendPointHistory(ctx context.Context, entry domain.PointHistory) error

	GetVoucherByCodeForUpdate(ctx context.Context, code string) (*domain.Voucher, error)
	AdjustVoucherRemaining(ctx context.Context, voucherID string, delta int) error
	InsertVoucherUsage(ctx context.Context, usage domain.VoucherUsage) error
	DeleteVoucherUsage(ctx context.Context, transactionID string) (*domain.VoucherUsage, error)

	InsertShift(ctx context.Context, shift *domain.CashierShift) error
	GetOpenShiftForUpdate(ctx context.Context, cashierID string) (*domain.CashierShift, error)
	UpdateShift(ctx context.Context, shift *domain.CashierShift) error
	AppendShiftLog(ctx context.Context, entry domain.CashierShiftLog) error
	CountPendingTransactions(ctx context.Context, cashierID string) (int, error)
	AggregateShiftWindow(ctx context.Context, cashierID string, from time.Time, to time.Time) (*domain.ShiftTotals, error)

	ListActivePromos(ctx context.Context) ([]domain.PromoRule, error)
}

type Repository interface {
	// WithinTx runs fn inside a single atomic transaction. Any error
	// from fn rolls back every write made through the Tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	ListPointHistory(ctx context.Context, memberID string, limit int) ([]domain.PointHistory, error)
	GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error)
	GetOpenShift(ctx context.Context, cashierID string) (*domain.CashierShift, error)
	ListShiftLogs(ctx context.Context, shiftID string, limit int) ([]domain.CashierShiftLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
