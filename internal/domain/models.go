package domain

import "time"

// PointValue is the rupiah value of a single loyalty point, used both
// when redeeming points as a discount and when accruing points from a
// settled sale.
const PointValue int64 = 1000

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Points     int64      `json:"points"`
	TotalSpent int64      `json:"total_spent"`
	LastVisit  *time.Time `json:"last_visit,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type PointHistory struct {
	ID            string    `json:"id"`
	MemberID      string    `json:"member_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Points        int64     `json:"points"`
	Type          string    `json:"type"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type Voucher struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Type          string    `json:"type"`
	Value         int64     `json:"value"`
	MinPurchase   int64     `json:"min_purchase"`
	MaxDiscount   int64     `json:"max_discount"`
	RemainingUses int       `json:"remaining_uses"`
	Active        bool      `json:"active"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type VoucherUsage struct {
	ID             string    `json:"id"`
	VoucherID      string    `json:"voucher_id"`
	TransactionID  string    `json:"transaction_id"`
	DiscountAmount int64     `json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

type PromoRule struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	MinSubtotal     int64     `json:"min_subtotal"`
	DiscountPercent float64   `json:"discount_percent"`
	FlatDiscount    int64     `json:"flat_discount"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// LineItem is a price snapshot taken at transaction creation; later
// product price changes never alter a recorded sale.
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// TransactionEvent records one state change of a transaction. Events
// are append-only and returned in insertion order.
type TransactionEvent struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason,omitempty"`
	RefundRef     string    `json:"refund_ref,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}

type Transaction struct {
	ID              string             `json:"id"`
	CashierID       string             `json:"cashier_id"`
	MemberID        string             `json:"member_id,omitempty"`
	CustomerPhone   string             `json:"customer_phone,omitempty"`
	Items           []LineItem         `json:"items"`
	Subtotal        int64              `json:"subtotal"`
	ManualDiscount  int64              `json:"manual_discount"`
	VoucherID       string             `json:"voucher_id,omitempty"`
	VoucherCode     string             `json:"voucher_code,omitempty"`
	VoucherDiscount int64              `json:"voucher_discount"`
	PromoDiscount   int64              `json:"promo_discount"`
	PointsUsed      int64              `json:"points_used"`
	PointsEarned    int64              `json:"points_earned"`
	Tax             int64              `json:"tax"`
	FinalTotal      int64              `json:"final_total"`
	PaymentMethod   string             `json:"payment_method"`
	PaymentStatus   string             `json:"payment_status"`
	Status          string             `json:"status"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Events          []TransactionEvent `json:"events,omitempty"`
}

type TransactionItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateTransactionRequest struct {
	Items            []TransactionItemRequest `json:"items"`
	MemberID         string                   `json:"member_id,omitempty"`
	CustomerPhone    string                   `json:"customer_phone,omitempty"`
	PaymentMethod    string                   `json:"payment_method"`
	ManualDiscount   int64                    `json:"manual_discount"`
	VoucherCode      string                   `json:"voucher_code,omitempty"`
	PointsUsed       int64                    `json:"points_used"`
	ReportedSubtotal int64                    `json:"reported_subtotal,omitempty"`
	DeferSettlement  bool                     `json:"defer_settlement,omitempty"`
}

type ConfirmPaymentRequest struct {
	Reference string `json:"reference,omitempty"`
}

type CancelTransactionRequest struct {
	Reason string `json:"reason"`
}

type RefundTransactionRequest struct {
	RefundRef string `json:"refund_ref"`
	Reason    string `json:"reason,omitempty"`
}

// GatewayNotification is the payment-provider callback payload. Field
// names follow the provider wire format, so they stay snake_case with
// string-typed amounts.
type GatewayNotification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	PaymentType       string `json:"payment_type,omitempty"`
	FraudStatus       string `json:"fraud_status,omitempty"`
}

type CashierShift struct {
	ID             string     `json:"id"`
	CashierID      string     `json:"cashier_id"`
	OpeningBalance int64      `json:"opening_balance"`
	ClosingBalance int64      `json:"closing_balance,omitempty"`
	PhysicalCash   int64      `json:"physical_cash,omitempty"`
	ExpectedCash   int64      `json:"expected_cash,omitempty"`
	Difference     int64      `json:"difference,omitempty"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

type CashierShiftLog struct {
	ID        string    `json:"id"`
	ShiftID   string    `json:"shift_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

type ShiftOpenRequest struct {
	OpeningBalance int64 `json:"opening_balance"`
}

type ShiftCloseRequest struct {
	ClosingBalance int64 `json:"closing_balance"`
}

type MethodTotal struct {
	Count int64 `json:"count"`
	Total int64 `json:"total"`
}

// ShiftTotals aggregates settled activity inside a shift window.
type ShiftTotals struct {
	CompletedTransactions int64                  `json:"completed_transactions"`
	CompletedSales        int64                  `json:"completed_sales"`
	CashSales             int64                  `json:"cash_sales"`
	ItemsSold             int64                  `json:"items_sold"`
	ManualDiscountTotal   int64                  `json:"manual_discount_total"`
	VoucherDiscountTotal  int64                  `json:"voucher_discount_total"`
	PromoDiscountTotal    int64                  `json:"promo_discount_total"`
	TaxTotal              int64                  `json:"tax_total"`
	PointsUsedTotal       int64                  `json:"points_used_total"`
	PointsEarnedTotal     int64                  `json:"points_earned_total"`
	PaymentBreakdown      map[string]MethodTotal `json:"payment_breakdown"`
	StatusCounts          map[string]int64       `json:"status_counts"`
}

type ShiftCloseReport struct {
	ShiftID        string            `json:"shift_id"`
	CashierID      string            `json:"cashier_id"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	OpeningBalance int64             `json:"opening_balance"`
	ExpectedCash   int64             `json:"expected_cash"`
	PhysicalCash   int64             `json:"physical_cash"`
	Difference     int64             `json:"difference"`
	Totals         ShiftTotals       `json:"totals"`
	Logs           []CashierShiftLog `json:"logs"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusCancelled = "CANCELLED"
	TxStatusRefunded  = "REFUNDED"
	TxStatusFailed    = "FAILED"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusPaid      = "PAID"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
)

const (
	PaymentMethodCash           = "CASH"
	PaymentMethodCard           = "CARD"
	PaymentMethodTransfer       = "TRANSFER"
	PaymentMethodQRIS           = "QRIS"
	PaymentMethodVirtualAccount = "VIRTUAL_ACCOUNT"
	PaymentMethodGateway        = "GATEWAY"
)

const (
	EventCreated   = "CREATED"
	EventConfirmed = "CONFIRMED"
	EventCancelled = "CANCELLED"
	EventRefunded  = "REFUNDED"
	EventGateway   = "GATEWAY"
)

const (
	PointTypeEarned   = "EARNED"
	PointTypeUsed     = "USED"
	PointTypeAdjusted = "ADJUSTED"
)

const (
	VoucherTypePercent      = "PERCENT"
	VoucherTypeFixed        = "FIXED"
	VoucherTypeFreeShipping = "FREE_SHIPPING"
)

const (
	PromoTypePercent = "PERCENT"
	PromoTypeFlat    = "FLAT"
)

const (
	ShiftStatusOpen   = "OPEN"
	ShiftStatusClosed = "CLOSED"
)

const (
	ShiftActionOpen  = "OPEN_SHIFT"
	ShiftActionClose = "CLOSE_SHIFT"
)
