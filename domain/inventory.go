package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the availability label of an inventory item.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusReserved    Status = "reserved"
	StatusDepleted    Status = "depleted"
	StatusMaintenance Status = "maintenance"
)

// DeriveStatus maps stock levels to a status. First match wins:
// stock <= 0 is depleted, stock below the threshold is reserved, anything
// else is available. Negative stock is depleted.
func DeriveStatus(stock, minStock int) Status {
	switch {
	case stock <= 0:
		return StatusDepleted
	case stock < minStock:
		return StatusReserved
	default:
		return StatusAvailable
	}
}

// MaterialStatus is DeriveStatus for materials, which can also be flagged as
// under maintenance.
func MaterialStatus(stock, minStock int, inMaintenance bool) Status {
	if inMaintenance {
		return StatusMaintenance
	}
	return DeriveStatus(stock, minStock)
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusAvailable, StatusReserved, StatusDepleted, StatusMaintenance:
		return st, nil
	}
	return "", Validationf("unknown status %q", s)
}

// InventoryItem holds the fields medications and materials share.
type InventoryItem struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	AcquiredOn   *time.Time      `json:"acquired_on,omitempty"`
	Stock        int             `json:"stock"`
	MinStock     int             `json:"min_stock"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Medication struct {
	InventoryItem
	ExpiresOn    *time.Time `json:"expires_on,omitempty"`
	Lot          string     `json:"lot"`
	Manufacturer string     `json:"manufacturer"`
}

type Material struct {
	InventoryItem
	InMaintenance bool `json:"in_maintenance"`
}

// ItemInput carries the caller-settable fields of an inventory item. Status
// is not among them.
type ItemInput struct {
	Name        string
	Description string
	AcquiredOn  *time.Time
	Stock       int
	MinStock    int
	UnitPrice   decimal.Decimal
	CategoryID  *int64
}

type MedicationInput struct {
	ItemInput
	ExpiresOn    *time.Time
	Lot          string
	Manufacturer string
}

type MaterialInput struct {
	ItemInput
}

// ItemPatch is a partial update; nil fields keep their stored value.
// ClearCategory detaches the item from its category.
type ItemPatch struct {
	Name          *string
	Description   *string
	AcquiredOn    *time.Time
	Stock         *int
	MinStock      *int
	UnitPrice     *decimal.Decimal
	CategoryID    *int64
	ClearCategory bool
	// ClearAcquiredOn removes the acquisition date and wins over AcquiredOn.
	ClearAcquiredOn bool
}

type MedicationPatch struct {
	ItemPatch
	ExpiresOn      *time.Time
	Lot            *string
	Manufacturer   *string
	ClearExpiresOn bool
}

// ApplyExpiry returns the expiry date after the patch, given the stored one.
func (p MedicationPatch) ApplyExpiry(cur *time.Time) *time.Time {
	if p.ClearExpiresOn {
		return nil
	}
	if p.ExpiresOn != nil {
		return p.ExpiresOn
	}
	return cur
}

type MaterialPatch struct {
	ItemPatch
}

// Validate checks the invariants of a fully populated item.
func (in ItemInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return Validationf("name is required")
	}
	if in.Stock < 0 {
		return Validationf("stock must not be negative")
	}
	if in.MinStock < 0 {
		return Validationf("min_stock must not be negative")
	}
	if in.UnitPrice.IsNegative() {
		return Validationf("unit_price must not be negative")
	}
	return nil
}

// Apply overlays the patch on in.
func (p ItemPatch) Apply(in *ItemInput) {
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.ClearAcquiredOn {
		in.AcquiredOn = nil
	} else if p.AcquiredOn != nil {
		in.AcquiredOn = p.AcquiredOn
	}
	if p.Stock != nil {
		in.Stock = *p.Stock
	}
	if p.MinStock != nil {
		in.MinStock = *p.MinStock
	}
	if p.UnitPrice != nil {
		in.UnitPrice = *p.UnitPrice
	}
	if p.ClearCategory {
		in.CategoryID = nil
	} else if p.CategoryID != nil {
		in.CategoryID = p.CategoryID
	}
}

// Input returns the settable fields of the stored item.
func (it InventoryItem) Input() ItemInput {
	return ItemInput{
		Name:        it.Name,
		Description: it.Description,
		AcquiredOn:  it.AcquiredOn,
		Stock:       it.Stock,
		MinStock:    it.MinStock,
		UnitPrice:   it.UnitPrice,
		CategoryID:  it.CategoryID,
	}
}
