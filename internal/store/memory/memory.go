package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasirpos/internal/domain"
	"kasirpos/internal/store"
	"kasirpos/internal/xid"
)

// Store is the in-memory repository used for dev/demo mode and as the
// service-level test double. WithinTx takes the write lock for the
// whole callback and restores a snapshot on error, so a failed
// callback leaves no partial writes behind.
type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	members            map[string]domain.Member
	pointHistory       []domain.PointHistory
	transactions       map[string]domain.Transaction
	eventsByTx         map[string][]domain.TransactionEvent
	vouchersByID       map[string]domain.Voucher
	voucherIDByCode    map[string]string
	voucherUsageByTx   map[string]domain.VoucherUsage
	shiftsByID         map[string]domain.CashierShift
	openShiftByCashier map[string]string
	shiftLogsByShift   map[string][]domain.CashierShiftLog
	promosByID         map[string]domain.PromoRule
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prd-mie-01", Name: "Mie Goreng Instan", Category: "grocery", Price: 3500, Stock: 120, Active: true, CreatedAt: now},
		{ID: "prd-telur-01", Name: "Telur 10 Butir", Category: "grocery", Price: 26500, Stock: 80, Active: true, CreatedAt: now},
		{ID: "prd-susu-01", Name: "Susu UHT 1L", Category: "dairy", Price: 18900, Stock: 60, Active: true, CreatedAt: now},
		{ID: "prd-roti-01", Name: "Roti Tawar", Category: "bakery", Price: 17800, Stock: 40, Active: true, CreatedAt: now},
		{ID: "prd-kopi-01", Name: "Kopi Sachet", Category: "beverage", Price: 2600, Stock: 200, Active: true, CreatedAt: now},
		{ID: "prd-gula-01", Name: "Gula 1kg", Category: "grocery", Price: 17400, Stock: 90, Active: true, CreatedAt: now},
		{ID: "prd-teh-01", Name: "Teh Celup", Category: "beverage", Price: 9800, Stock: 110, Active: true, CreatedAt: now},
		{ID: "prd-air-01", Name: "Air Mineral 600ml", Category: "beverage", Price: 3900, Stock: 300, Active: true, CreatedAt: now},
		{ID: "prd-keripik-01", Name: "Keripik Singkong", Category: "snack", Price: 12800, Stock: 70, Active: true, CreatedAt: now},
		{ID: "prd-coklat-01", Name: "Coklat Batang", Category: "snack", Price: 8600, Stock: 85, Active: true, CreatedAt: now},
		{ID: "prd-sabun-01", Name: "Sabun Mandi", Category: "household", Price: 7400, Stock: 150, Active: true, CreatedAt: now},
		{ID: "prd-shampoo-01", Name: "Shampoo Sachet", Category: "household", Price: 3200, Stock: 180, Active: true, CreatedAt: now},
	}
	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	members := map[string]domain.Member{
		"mbr-budi-01": {ID: "mbr-budi-01", Name: "Budi Santoso", Phone: "+628111000001", Points: 50, TotalSpent: 450000, CreatedAt: now},
		"mbr-sari-01": {ID: "mbr-sari-01", Name: "Sari Lestari", Phone: "+628111000002", Points: 12, TotalSpent: 98000, CreatedAt: now},
	}

	vouchers := []domain.Voucher{
		{ID: "vch-hemat-01", Code: "HEMAT10", Type: domain.VoucherTypePercent, Value: 10, MinPurchase: 50000, MaxDiscount: 20000, RemainingUses: 100, Active: true, CreatedAt: now},
		{ID: "vch-potong-01", Code: "POTONG5K", Type: domain.VoucherTypeFixed, Value: 5000, MinPurchase: 25000, RemainingUses: 50, Active: true, CreatedAt: now},
		{ID: "vch-ongkir-01", Code: "GRATISONGKIR", Type: domain.VoucherTypeFreeShipping, Value: 8000, MinPurchase: 30000, RemainingUses: 40, Active: true, CreatedAt: now},
	}
	voucherMap := make(map[string]domain.Voucher, len(vouchers))
	codeMap := make(map[string]string, len(vouchers))
	for _, v := range vouchers {
		voucherMap[v.ID] = v
		codeMap[strings.ToUpper(v.Code)] = v.ID
	}

	promos := map[string]domain.PromoRule{
		"prm-belanja-01": {ID: "prm-belanja-01", Name: "Belanja Hemat 100rb", Type: domain.PromoTypeFlat, MinSubtotal: 100000, FlatDiscount: 5000, Active: true, CreatedAt: now},
	}

	return &Store{
		products:           productMap,
		members:            members,
		pointHistory:       make([]domain.PointHistory, 0, 64),
		transactions:       make(map[string]domain.Transaction),
		eventsByTx:         make(map[string][]domain.TransactionEvent),
		vouchersByID:       voucherMap,
		voucherIDByCode:    codeMap,
		voucherUsageByTx:   make(map[string]domain.VoucherUsage),
		shiftsByID:         make(map[string]domain.CashierShift),
		openShiftByCashier: make(map[string]string),
		shiftLogsByShift:   make(map[string][]domain.CashierShiftLog),
		promosByID:         promos,
		usersByUsername:    seedUsers(),
	}
}

// snapshot captures the state touched by WithinTx. Map values are
// whole structs that are always replaced, never mutated in place, so
// copying the maps is enough.
type snapshot struct {
	products           map[string]domain.Product
	members            map[string]domain.Member
	pointHistory       []domain.PointHistory
	transactions       map[string]domain.Transaction
	eventsByTx         map[string][]domain.TransactionEvent
	vouchersByID       map[string]domain.Voucher
	voucherUsageByTx   map[string]domain.VoucherUsage
	shiftsByID         map[string]domain.CashierShift
	openShiftByCashier map[string]string
	shiftLogsByShift   map[string][]domain.CashierShiftLog
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *Store) takeSnapshot() snapshot {
	return snapshot{
		products:           copyMap(s.products),
		members:            copyMap(s.members),
		pointHistory:       slices.Clone(s.pointHistory),
		transactions:       copyMap(s.transactions),
		eventsByTx:         copyMap(s.eventsByTx),
		vouchersByID:       copyMap(s.vouchersByID),
		voucherUsageByTx:   copyMap(s.voucherUsageByTx),
		shiftsByID:         copyMap(s.shiftsByID),
		openShiftByCashier: copyMap(s.openShiftByCashier),
		shiftLogsByShift:   copyMap(s.shiftLogsByShift),
	}
}

func (s *Store) restore(sn snapshot) {
	s.products = sn.products
	s.members = sn.members
	s.pointHistory = sn.pointHistory
	s.transactions = sn.transactions
	s.eventsByTx = sn.eventsByTx
	s.vouchersByID = sn.vouchersByID
	s.voucherUsageByTx = sn.voucherUsageByTx
	s.shiftsByID = sn.shiftsByID
	s.openShiftByCashier = sn.openShiftByCashier
	s.shiftLogsByShift = sn.shiftLogsByShift
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn := s.takeSnapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(sn)
		return err
	}
	return nil
}

// memTx operates on the parent store with its write lock already held.
type memTx struct {
	s *Store
}

func (t *memTx) InsertTransaction(_ context.Context, trx *domain.Transaction) error {
	if _, ok := t.s.transactions[trx.ID]; ok {
		return fmt.Errorf("%w: transaction %s already exists", store.ErrConflict, trx.ID)
	}
	cp := *trx
	cp.Items = slices.Clone(trx.Items)
	cp.Events = nil
	t.s.transactions[trx.ID] = cp
	return nil
}

func (t *memTx) GetTransactionForUpdate(_ context.Context, id string) (*domain.Transaction, error) {
	trx, ok := t.s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := trx
	cp.Items = slices.Clone(trx.Items)
	cp.Events = slices.Clone(t.s.eventsByTx[id])
	return &cp, nil
}

func (t *memTx) UpdateTransaction(_ context.Context, trx *domain.Transaction) error {
	if _, ok := t.s.transactions[trx.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *trx
	cp.Items = slices.Clone(trx.Items)
	cp.Events = nil
	t.s.transactions[trx.ID] = cp
	return nil
}

func (t *memTx) AppendTransactionEvent(_ context.Context, event domain.TransactionEvent) error {
	if _, ok := t.s.transactions[event.TransactionID]; !ok {
		return store.ErrNotFound
	}
	if event.ID == "" {
		event.ID = xid.New("evt")
	}
	t.s.eventsByTx[event.TransactionID] = append(slices.Clone(t.s.eventsByTx[event.TransactionID]), event)
	return nil
}

func (t *memTx) GetProductsForUpdate(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, ok := t.s.products[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		out[id] = p
	}
	return out, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID string, delta int) (int, error) {
	p, ok := t.s.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	p.Stock += delta
	t.s.products[productID] = p
	return p.Stock, nil
}

func (t *memTx) GetMemberForUpdate(_ context.Context, id string) (*domain.Member, error) {
	m, ok := t.s.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", store.ErrNotFound, id)
	}
	cp := m
	return &cp, nil
}

func (t *memTx) UpdateMember(_ context.Context, member *domain.Member) error {
	if _, ok := t.s.members[member.ID]; !ok {
		return store.ErrNotFound
	}
	t.s.members[member.ID] = *member
	return nil
}

func (t *memTx) AppendPointHistory(_ context.Context, entry domain.PointHistory) error {
	t.s.pointHistory = append(slices.Clone(t.s.pointHistory), entry)
	return nil
}

func (t *memTx) GetVoucherByCodeForUpdate(_ context.Context, code string) (*domain.Voucher, error) {
	id, ok := t.s.voucherIDByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: voucher %s", store.ErrNotFound, code)
	}
	v := t.s.vouchersByID[id]
	cp := v
	return &cp, nil
}

func (t *memTx) AdjustVoucherRemaining(_ context.Context, voucherID string, delta int) error {
	v, ok := t.s.vouchersByID[voucherID]
	if !ok {
		return fmt.Errorf("%w: voucher %s", store.ErrNotFound, voucherID)
	}
	v.RemainingUses += delta
	t.s.vouchersByID[voucherID] = v
	return nil
}

func (t *memTx) InsertVoucherUsage(_ context.Context, usage domain.VoucherUsage) error {
	if _, ok := t.s.voucherUsageByTx[usage.TransactionID]; ok {
		return fmt.Errorf("%w: voucher already used on transaction %s", store.ErrConflict, usage.TransactionID)
	}
	t.s.voucherUsageByTx[usage.TransactionID] = usage
	return nil
}

func (t *memTx) DeleteVoucherUsage(_ context.Context, transactionID string) (*domain.VoucherUsage, error) {
	usage, ok := t.s.voucherUsageByTx[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(t.s.voucherUsageByTx, transactionID)
	cp := usage
	return &cp, nil
}

func (t *memTx) InsertShift(_ context.Context, shift *domain.CashierShift) error {
	if _, ok := t.s.openShiftByCashier[shift.CashierID]; ok {
		return fmt.Errorf("%w: cashier %s already has an open shift", store.ErrConflict, shift.CashierID)
	}
	t.s.shiftsByID[shift.ID] = *shift
	t.s.openShiftByCashier[shift.CashierID] = shift.ID
	return nil
}

func (t *memTx) GetOpenShiftForUpdate(_ context.Context, cashierID string) (*domain.CashierShift, error) {
	id, ok := t.s.openShiftByCashier[cashierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	sh := t.s.shiftsByID[id]
	cp := sh
	return &cp, nil
}

func (t *memTx) UpdateShift(_ context.Context, shift *domain.CashierShift) error {
	if _, ok := t.s.shiftsByID[shift.ID]; !ok {
		return store.ErrNotFound
	}
	t.s.shiftsByID[shift.ID] = *shift
	if shift.Status == domain.ShiftStatusClosed && t.s.openShiftByCashier[shift.CashierID] == shift.ID {
		delete(t.s.openShiftByCashier, shift.CashierID)
	}
	return nil
}

func (t *memTx) AppendShiftLog(_ context.Context, entry domain.CashierShiftLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("slg")
	}
	t.s.shiftLogsByShift[entry.ShiftID] = append(slices.Clone(t.s.shiftLogsByShift[entry.ShiftID]), entry)
	return nil
}

func (t *memTx) CountPendingTransactions(_ context.Context, cashierID string) (int, error) {
	count := 0
	for _, trx := range t.s.transactions {
		if trx.CashierID == cashierID && trx.Status == domain.TxStatusPending {
			count++
		}
	}
	return count, nil
}

func (t *memTx) AggregateShiftWindow(_ context.Context, cashierID string, from time.Time, to time.Time) (*domain.ShiftTotals, error) {
	totals := &domain.ShiftTotals{
		PaymentBreakdown: make(map[string]domain.MethodTotal),
		StatusCounts:     make(map[string]int64),
	}
	for _, trx := range t.s.transactions {
		if trx.CashierID != cashierID || trx.CreatedAt.Before(from) || trx.CreatedAt.After(to) {
			continue
		}
		totals.StatusCounts[trx.Status]++
		if trx.Status != domain.TxStatusCompleted {
			continue
		}
		totals.CompletedTransactions++
		totals.CompletedSales += trx.FinalTotal
		if trx.PaymentMethod == domain.PaymentMethodCash {
			totals.CashSales += trx.FinalTotal
		}
		for _, item := range trx.Items {
			totals.ItemsSold += int64(item.Quantity)
		}
		totals.ManualDiscountTotal += trx.ManualDiscount
		totals.VoucherDiscountTotal += trx.VoucherDiscount
		totals.PromoDiscountTotal += trx.PromoDiscount
		totals.TaxTotal += trx.Tax
		totals.PointsUsedTotal += trx.PointsUsed
		totals.PointsEarnedTotal += trx.PointsEarned
		mt := totals.PaymentBreakdown[trx.PaymentMethod]
		mt.Count++
		mt.Total += trx.FinalTotal
		totals.PaymentBreakdown[trx.PaymentMethod] = mt
	}
	return totals, nil
}

func (t *memTx) ListActivePromos(_ context.Context) ([]domain.PromoRule, error) {
	promos := make([]domain.PromoRule, 0, len(t.s.promosByID))
	for _, p := range t.s.promosByID {
		if p.Active {
			promos = append(promos, p)
		}
	}
	slices.SortFunc(promos, func(a, b domain.PromoRule) int {
		return strings.Compare(a.ID, b.ID)
	})
	return promos, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := trx
	cp.Items = slices.Clone(trx.Items)
	cp.Events = slices.Clone(s.eventsByTx[id])
	return &cp, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Store) GetMember(_ context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := m
	return &cp, nil
}

func (s *Store) ListPointHistory(_ context.Context, memberID string, limit int) ([]domain.PointHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.PointHistory, 0, 16)
	for i := len(s.pointHistory) - 1; i >= 0; i-- {
		if s.pointHistory[i].MemberID != memberID {
			continue
		}
		entries = append(entries, s.pointHistory[i])
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func (s *Store) GetVoucherByCode(_ context.Context, code string) (*domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.voucherIDByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := s.vouchersByID[id]
	cp := v
	return &cp, nil
}

func (s *Store) GetOpenShift(_ context.Context, cashierID string) (*domain.CashierShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openShiftByCashier[cashierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	sh := s.shiftsByID[id]
	cp := sh
	return &cp, nil
}

func (s *Store) ListShiftLogs(_ context.Context, shiftID string, limit int) ([]domain.CashierShiftLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := slices.Clone(s.shiftLogsByShift[shiftID])
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[user.Username]; ok {
		return fmt.Errorf("%w: username %s taken", store.ErrConflict, user.Username)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}
