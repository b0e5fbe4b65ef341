package notify

import (
	"strings"
	"testing"

	"kasirpos/internal/domain"
)

func TestRenderReceipt(t *testing.T) {
	trx := &domain.Transaction{
		ID: "trx-receipt-01",
		Items: []domain.LineItem{
			{Name: "Mie Goreng Instan", Quantity: 2, Subtotal: 7000},
			{Name: "Susu UHT 1L", Quantity: 1, Subtotal: 18900},
		},
		VoucherCode:     "POTONG5K",
		VoucherDiscount: 5000,
		PointsUsed:      5,
		PointsEarned:    15,
		FinalTotal:      15900,
		PaymentMethod:   domain.PaymentMethodCash,
	}

	text := RenderReceipt(trx)
	for _, want := range []string{
		"trx-receipt-01",
		"Mie Goreng Instan x2 = Rp7000",
		"Susu UHT 1L x1 = Rp18900",
		"Voucher POTONG5K: Rp5000",
		"Poin dipakai: 5",
		"Total: Rp15900 (CASH)",
		"Poin diperoleh: 15",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("receipt missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Diskon:") || strings.Contains(text, "Promo:") {
		t.Fatalf("receipt shows discounts that were not given:\n%s", text)
	}
}

func TestRenderReceiptMinimal(t *testing.T) {
	trx := &domain.Transaction{
		ID:            "trx-receipt-02",
		Items:         []domain.LineItem{{Name: "Air Mineral 600ml", Quantity: 1, Subtotal: 3900}},
		FinalTotal:    3900,
		PaymentMethod: domain.PaymentMethodQRIS,
	}

	text := RenderReceipt(trx)
	if !strings.Contains(text, "Total: Rp3900 (QRIS)") {
		t.Fatalf("unexpected receipt:\n%s", text)
	}
	if strings.Contains(text, "Poin") {
		t.Fatalf("anonymous receipt mentions points:\n%s", text)
	}
}
