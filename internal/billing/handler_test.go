package billing

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ledgerstack/ledgerstack/internal/money"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

func testRouter(t *testing.T, repo *memoryRepo) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, testService(repo), nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithAccount(req.Context(), testAccount)))
		})
	})
	r.Route("/bills", h.MountRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateBill(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "100")
	router := testRouter(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/bills", map[string]any{
		"client_id": 1,
		"bill_date": "2026-03-14T00:00:00Z",
		"tax_rate":  "10",
		"items": []map[string]any{
			{"lot_id": 10, "quantity": "2", "selling_price": "10.00"},
		},
		"extra_charges": []map[string]any{
			{"name": "Shipping", "amount": "3.00"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp billResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "20.00", resp.Subtotal.StringFixed(2))
	require.Equal(t, "2.00", resp.Tax.StringFixed(2))
	require.Equal(t, "25.00", resp.Total.StringFixed(2))
	require.Equal(t, BillStatusDue, resp.Status)
	require.Len(t, resp.Items, 1)
}

func TestHandlerCreateInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "1")
	router := testRouter(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/bills", map[string]any{
		"client_id": 1,
		"bill_date": "2026-03-14T00:00:00Z",
		"items": []map[string]any{
			{"lot_id": 10, "quantity": "5", "selling_price": "1.00"},
		},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem struct {
		Title     string `json:"title"`
		LotID     int64  `json:"lot_id"`
		Requested string `json:"requested"`
		Available string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Insufficient Stock", problem.Title)
	require.EqualValues(t, 10, problem.LotID)
	require.Equal(t, "5", problem.Requested)
	require.Equal(t, "1", problem.Available)
	require.True(t, repo.available(10).Equal(money.MustParse("1")))
}

func TestHandlerCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	router := testRouter(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/bills", map[string]any{
		"client_id": 1,
		"bill_date": "2026-03-14T00:00:00Z",
		"items":     []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/bills", map[string]any{"client_id": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerShowNotFound(t *testing.T) {
	router := testRouter(t, newMemoryRepo())
	rec := doJSON(t, router, http.MethodGet, "/bills/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/bills/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerStatusAndDelete(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "10")
	router := testRouter(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/bills", map[string]any{
		"client_id": 1,
		"bill_date": "2026-03-14T00:00:00Z",
		"items": []map[string]any{
			{"lot_id": 10, "quantity": "4", "selling_price": "1.00"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created billResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/bills/1/status", map[string]any{"status": "paid"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated billResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, BillStatusPaid, updated.Status)

	rec = doJSON(t, router, http.MethodPost, "/bills/1/status", map[string]any{"status": "void"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/bills/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, repo.available(10).Equal(repo.lots[10].quantity))

	rec = doJSON(t, router, http.MethodGet, "/bills/1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerList(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "10")
	router := testRouter(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/bills", map[string]any{
		"client_id": 1,
		"bill_date": "2026-03-14T00:00:00Z",
		"items": []map[string]any{
			{"lot_id": 10, "quantity": "1", "selling_price": "2.50"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/bills?status=paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Bills      []billResponse    `json:"bills"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Empty(t, listResp.Bills)

	rec = doJSON(t, router, http.MethodGet, "/bills?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/bills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Bills, 1)
	require.Equal(t, "Acme Traders", listResp.Bills[0].ClientName)
}

func TestHandlerPDFUnconfigured(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(10, testAccount, "10")
	router := testRouter(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/bills", map[string]any{
		"client_id": 1,
		"bill_date": "2026-03-14T00:00:00Z",
		"items": []map[string]any{
			{"lot_id": 10, "quantity": "1", "selling_price": "2.50"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/bills/1/pdf", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
