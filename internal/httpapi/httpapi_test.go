package httpapi

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kasirpos/internal/cache"
	"kasirpos/internal/domain"
	"kasirpos/internal/notify"
	"kasirpos/internal/service"
	"kasirpos/internal/settlement"
	"kasirpos/internal/store/memory"
)

const gatewayKey = "gateway-test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo := memory.NewSeeded()
	processor := settlement.NewProcessor(gatewayKey, notify.NewLogNotifier(zerolog.Nop()), zerolog.Nop())
	svc := service.New(repo, processor, cache.NoopTransactionCache{}, 0, zerolog.Nop())
	auth := NewAuthManager("test-secret-with-enough-length-0123", time.Hour, repo)
	api := New(svc, auth, "http://127.0.0.1:3000", zerolog.Nop())

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, out.Bytes()
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, resp.StatusCode, body)
	}
	var out domain.LoginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if out.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	return out.AccessToken
}

func createTransaction(t *testing.T, server *httptest.Server, token string, req domain.CreateTransactionRequest) domain.Transaction {
	t.Helper()
	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/transactions", token, req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create transaction: status %d: %s", resp.StatusCode, body)
	}
	var trx domain.Transaction
	if err := json.Unmarshal(body, &trx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	return trx
}

func TestCashSaleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")

	trx := createTransaction(t, server, token, domain.CreateTransactionRequest{
		Items:         []domain.TransactionItemRequest{{ProductID: "prd-mie-01", Quantity: 2}},
		PaymentMethod: "CASH",
	})
	if trx.Status != domain.TxStatusCompleted || trx.FinalTotal != 7000 {
		t.Fatalf("unexpected transaction: %s / %d", trx.Status, trx.FinalTotal)
	}

	resp, body := doJSON(t, server, http.MethodGet, "/api/v1/transactions/"+trx.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get transaction: status %d: %s", resp.StatusCode, body)
	}
}

func TestRequestsRequireToken(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, server, http.MethodPost, "/api/v1/transactions", "", domain.CreateTransactionRequest{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/transactions", "not-a-jwt", domain.CreateTransactionRequest{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", resp.StatusCode)
	}
}

func TestConfirmAndConflicts(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")

	trx := createTransaction(t, server, token, domain.CreateTransactionRequest{
		Items:         []domain.TransactionItemRequest{{ProductID: "prd-air-01", Quantity: 1}},
		PaymentMethod: "TRANSFER",
	})

	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/transactions/"+trx.ID+"/confirm/QRIS", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on method mismatch, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, server, http.MethodPost, "/api/v1/transactions/"+trx.ID+"/confirm/TRANSFER", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: status %d: %s", resp.StatusCode, body)
	}
	var confirmed domain.Transaction
	if err := json.Unmarshal(body, &confirmed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if confirmed.Status != domain.TxStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", confirmed.Status)
	}
}

func TestTransactionNotFound(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")

	resp, _ := doJSON(t, server, http.MethodGet, "/api/v1/transactions/trx-missing", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRefundForbiddenForCashier(t *testing.T) {
	server := newTestServer(t)
	cashierToken := login(t, server, "cashier", "cashier123")
	adminToken := login(t, server, "admin", "admin123")

	trx := createTransaction(t, server, cashierToken, domain.CreateTransactionRequest{
		Items:         []domain.TransactionItemRequest{{ProductID: "prd-kopi-01", Quantity: 2}},
		PaymentMethod: "CASH",
	})

	resp, _ := doJSON(t, server, http.MethodPost, "/api/v1/transactions/"+trx.ID+"/refund", cashierToken, domain.RefundTransactionRequest{RefundRef: "rf-1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier refund, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/transactions/"+trx.ID+"/refund", adminToken, domain.RefundTransactionRequest{RefundRef: "rf-1", Reason: "damaged"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin refund: status %d: %s", resp.StatusCode, body)
	}
}

func TestGatewayCallbackOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")

	trx := createTransaction(t, server, token, domain.CreateTransactionRequest{
		Items:         []domain.TransactionItemRequest{{ProductID: "prd-roti-01", Quantity: 1}},
		PaymentMethod: "GATEWAY",
	})

	gross := fmt.Sprintf("%d.00", trx.FinalTotal)
	sum := sha512.Sum512([]byte(trx.ID + "200" + gross + gatewayKey))
	payload := map[string]any{
		"order_id":           trx.ID,
		"transaction_status": "settlement",
		"status_code":        "200",
		"gross_amount":       gross,
		"signature_key":      hex.EncodeToString(sum[:]),
		"payment_type":       "qris",
		"fraud_status":       "accept",
	}

	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/payments/gateway/callback", "", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("callback: status %d: %s", resp.StatusCode, body)
	}

	payload["signature_key"] = "forged"
	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/payments/gateway/callback", "", payload)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", resp.StatusCode)
	}
}

func TestShiftFlowOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := login(t, server, "cashier", "cashier123")

	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/shifts/open", token, domain.ShiftOpenRequest{OpeningBalance: 25000})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open shift: status %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/shifts/current", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current shift: status %d", resp.StatusCode)
	}

	createTransaction(t, server, token, domain.CreateTransactionRequest{
		Items:         []domain.TransactionItemRequest{{ProductID: "prd-mie-01", Quantity: 2}},
		PaymentMethod: "CASH",
	})

	resp, body = doJSON(t, server, http.MethodPost, "/api/v1/shifts/close", token, domain.ShiftCloseRequest{ClosingBalance: 32000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close shift: status %d: %s", resp.StatusCode, body)
	}
	var report domain.ShiftCloseReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Difference != 0 {
		t.Fatalf("expected balanced drawer, got difference %d", report.Difference)
	}

	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/shifts/current", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", resp.StatusCode)
	}
}

func TestCashierManagementAdminOnly(t *testing.T) {
	server := newTestServer(t)
	cashierToken := login(t, server, "cashier", "cashier123")
	adminToken := login(t, server, "admin", "admin123")

	resp, _ := doJSON(t, server, http.MethodGet, "/api/v1/users/cashiers", cashierToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/users/cashiers", adminToken, domain.CashierCreateRequest{
		Username: "dewi1",
		Password: "rahasia-99",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create cashier: status %d: %s", resp.StatusCode, body)
	}

	login(t, server, "dewi1", "rahasia-99")
}

func TestLoginRateLimited(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 5; i++ {
		resp, _ := doJSON(t, server, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "wrong"})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, resp.StatusCode)
		}
	}

	resp, _ := doJSON(t, server, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, server, http.MethodGet, "/api/v1/auth/login", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, server, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d: %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing nosniff header, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected CORS origin %q", got)
	}
}
