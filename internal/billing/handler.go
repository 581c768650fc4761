package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledgerstack/ledgerstack/internal/inventory"
	"github.com/ledgerstack/ledgerstack/internal/platform/httpx"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

// PDFRenderer turns a finalized bill into a PDF document.
type PDFRenderer interface {
	RenderInvoice(ctx context.Context, bill *Bill) ([]byte, error)
}

// Handler exposes billing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer PDFRenderer
	validate *validator.Validate
}

// NewHandler builds Handler. renderer may be nil when PDF export is not
// configured.
func NewHandler(logger *slog.Logger, service *Service, renderer PDFRenderer) *Handler {
	return &Handler{logger: logger, service: service, renderer: renderer, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Patch("/{id}", h.updateHeader)
	r.Post("/{id}/status", h.updateStatus)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/pdf", h.pdf)
}

type billItemResponse struct {
	ID           int64           `json:"id"`
	LotID        int64           `json:"lot_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Total        decimal.Decimal `json:"total"`
}

type extraChargeResponse struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type billResponse struct {
	ID            int64                 `json:"id"`
	ClientID      int64                 `json:"client_id"`
	ClientName    string                `json:"client_name,omitempty"`
	Number        string                `json:"number"`
	InvoiceNumber string                `json:"invoice_number"`
	BillDate      time.Time             `json:"bill_date"`
	DueDate       *time.Time            `json:"due_date,omitempty"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	TaxRate       decimal.Decimal       `json:"tax_rate"`
	Tax           decimal.Decimal       `json:"tax"`
	ExtraTotal    decimal.Decimal       `json:"extra_charges_total"`
	Total         decimal.Decimal       `json:"total"`
	Status        BillStatus            `json:"status"`
	Notes         string                `json:"notes,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Items         []billItemResponse    `json:"items,omitempty"`
	ExtraCharges  []extraChargeResponse `json:"extra_charges,omitempty"`
}

func billToResponse(b *Bill) billResponse {
	resp := billResponse{
		ID:            b.ID,
		ClientID:      b.ClientID,
		ClientName:    b.ClientName,
		Number:        b.Number,
		InvoiceNumber: b.InvoiceNumber,
		BillDate:      b.BillDate,
		DueDate:       b.DueDate,
		Subtotal:      b.Subtotal,
		TaxRate:       b.TaxRate,
		Tax:           b.Tax,
		ExtraTotal:    b.ExtraTotal,
		Total:         b.Total,
		Status:        b.Status,
		Notes:         b.Notes,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	for _, it := range b.Items {
		resp.Items = append(resp.Items, billItemResponse{
			ID: it.ID, LotID: it.LotID, Quantity: it.Quantity,
			SellingPrice: it.SellingPrice, Total: it.Total,
		})
	}
	for _, c := range b.ExtraCharges {
		resp.ExtraCharges = append(resp.ExtraCharges, extraChargeResponse{ID: c.ID, Name: c.Name, Amount: c.Amount})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	bill, err := h.service.Create(r.Context(), shared.AccountFromContext(r.Context()), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, billToResponse(bill))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.billID(w, r)
	if !ok {
		return
	}
	bill, err := h.service.Get(r.Context(), shared.AccountFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, billToResponse(bill))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	clientID, _ := strconv.ParseInt(r.URL.Query().Get("client_id"), 10, 64)

	filter := ListFilter{
		Status:   BillStatus(r.URL.Query().Get("status")),
		ClientID: clientID,
		Page:     page,
		Limit:    limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "status must be due or paid")
		return
	}

	bills, total, err := h.service.List(r.Context(), shared.AccountFromContext(r.Context()), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	views := make([]billResponse, 0, len(bills))
	for i := range bills {
		views = append(views, billToResponse(&bills[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"bills":      views,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) updateHeader(w http.ResponseWriter, r *http.Request) {
	id, ok := h.billID(w, r)
	if !ok {
		return
	}
	var req UpdateBillHeaderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	bill, err := h.service.UpdateHeader(r.Context(), shared.AccountFromContext(r.Context()), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, billToResponse(bill))
}

type statusRequest struct {
	Status BillStatus `json:"status" validate:"required,oneof=due paid"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.billID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	bill, err := h.service.UpdateStatus(r.Context(), shared.AccountFromContext(r.Context()), id, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, billToResponse(bill))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.billID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.AccountFromContext(r.Context()), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "document rendering is not configured")
		return
	}
	id, ok := h.billID(w, r)
	if !ok {
		return
	}
	bill, err := h.service.Get(r.Context(), shared.AccountFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	doc, err := h.renderer.RenderInvoice(r.Context(), bill)
	if err != nil {
		h.logger.Error("render invoice pdf", slog.Any("error", err), slog.Int64("bill_id", id))
		httpx.Problem(w, http.StatusBadGateway, "PDF Unavailable", "document rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+bill.Number+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) billID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bill id")
		return 0, false
	}
	return id, true
}

// stockProblem extends the RFC7807 payload with the offending lot details.
type stockProblem struct {
	httpx.ProblemDetail
	LotID     int64           `json:"lot_id"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *inventory.InsufficientStockError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &stockErr):
		httpx.JSON(w, http.StatusConflict, stockProblem{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Insufficient Stock",
				Status: http.StatusConflict,
				Detail: stockErr.Error(),
			},
			LotID:     stockErr.LotID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	case errors.As(err, &validationErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConsistency):
		h.logger.Error("billing consistency violation", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Consistency Error", err.Error())
	default:
		h.logger.Error("billing request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
