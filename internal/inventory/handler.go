package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledgerstack/ledgerstack/internal/platform/httpx"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

// Handler exposes inventory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots", h.list)
	r.Post("/lots", h.intake)
	r.Get("/lots/{id}", h.show)
	r.Post("/lots/{id}/add-stock", h.addStock)
}

type intakeRequest struct {
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	SupplierID *int64          `json:"supplier_id,omitempty"`
	BatchCode  string          `json:"batch_code" validate:"max=64"`
	Location   string          `json:"location" validate:"max=128"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
}

type addStockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type lotResponse struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	ItemName     string          `json:"item_name,omitempty"`
	SupplierID   *int64          `json:"supplier_id,omitempty"`
	SupplierName string          `json:"supplier_name,omitempty"`
	BatchCode    string          `json:"batch_code"`
	Location     string          `json:"location"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvailableQty decimal.Decimal `json:"available_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ReceivedAt   time.Time       `json:"received_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func lotToResponse(l Lot) lotResponse {
	return lotResponse{
		ID:           l.ID,
		ItemID:       l.ItemID,
		SupplierID:   l.SupplierID,
		BatchCode:    l.BatchCode,
		Location:     l.Location,
		Quantity:     l.Quantity,
		AvailableQty: l.AvailableQty,
		UnitCost:     l.UnitCost,
		ReceivedAt:   l.ReceivedAt,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func (h *Handler) intake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := IntakeInput{
		ItemID:     req.ItemID,
		SupplierID: req.SupplierID,
		BatchCode:  req.BatchCode,
		Location:   req.Location,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		ActorID:    shared.AccountFromContext(r.Context()),
	}
	if req.ReceivedAt != nil {
		input.ReceivedAt = *req.ReceivedAt
	}

	lot, err := h.service.Intake(r.Context(), shared.AccountFromContext(r.Context()), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lotToResponse(lot))
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid lot id")
		return
	}
	var req addStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}

	accountID := shared.AccountFromContext(r.Context())
	lot, err := h.service.AddStock(r.Context(), accountID, id, req.Quantity, accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lotToResponse(lot))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid lot id")
		return
	}
	lot, err := h.service.Get(r.Context(), shared.AccountFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lotToResponse(lot))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	itemID, _ := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)

	filter := ListFilter{
		ItemID: itemID,
		Search: r.URL.Query().Get("search"),
		Page:   page,
		Limit:  limit,
	}
	lots, total, err := h.service.List(r.Context(), shared.AccountFromContext(r.Context()), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	views := make([]lotResponse, 0, len(lots))
	for _, v := range lots {
		resp := lotToResponse(v.Lot)
		resp.ItemName = v.ItemName
		resp.SupplierName = v.SupplierName
		views = append(views, resp)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"lots":       views,
		"pagination": shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrLotNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.RespondError(w, err)
	}
}
