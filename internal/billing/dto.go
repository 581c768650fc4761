package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateBillRequest is the validated input for the settlement engine. Line
// order matters: the first line that fails the availability check is the one
// reported.
type CreateBillRequest struct {
	ClientID      int64                `json:"client_id" validate:"required,gt=0"`
	BillDate      time.Time            `json:"bill_date" validate:"required"`
	DueDate       *time.Time           `json:"due_date,omitempty"`
	InvoiceNumber string               `json:"invoice_number" validate:"max=64"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	Status        BillStatus           `json:"status" validate:"omitempty,oneof=due paid"`
	Notes         string               `json:"notes" validate:"max=2000"`
	Items         []BillLineRequest    `json:"items" validate:"required,min=1,dive"`
	ExtraCharges  []ExtraChargeRequest `json:"extra_charges" validate:"dive"`
}

// BillLineRequest asks for quantity from one lot at a selling price.
type BillLineRequest struct {
	LotID        int64           `json:"lot_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

// ExtraChargeRequest is a named additive fee.
type ExtraChargeRequest struct {
	Name   string          `json:"name" validate:"required,max=128"`
	Amount decimal.Decimal `json:"amount"`
}

// UpdateBillHeaderRequest carries header-only partial updates. Line items
// are out of scope for this path; edits to them are delete-then-recreate at
// the caller level.
type UpdateBillHeaderRequest struct {
	ClientID      *int64           `json:"client_id,omitempty" validate:"omitempty,gt=0"`
	BillDate      *time.Time       `json:"bill_date,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	InvoiceNumber *string          `json:"invoice_number,omitempty" validate:"omitempty,max=64"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
	Status        *BillStatus      `json:"status,omitempty" validate:"omitempty,oneof=due paid"`
	Notes         *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ListFilter narrows bill listings.
type ListFilter struct {
	Status   BillStatus
	ClientID int64
	Page     int
	Limit    int
}
