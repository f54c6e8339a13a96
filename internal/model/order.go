package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// --- Order Structures ---

type Order struct {
	ID          string          `json:"id"`
	Items       []OrderItem     `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Date        time.Time       `json:"date"`
	AgentName   string          `json:"agentName"`
	TableNumber int             `json:"tableNumber,omitempty"` // 0 when the order is not attached to a table
}

type OrderItem struct {
	DrinkID   string          `json:"drinkId,omitempty"`
	Name      string          `json:"drinkName"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// LineTotal is quantity times unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (o Order) HasTable() bool {
	return o.TableNumber > 0
}

// --- Revenue Report ---

type PeriodKind string

const (
	PeriodDay    PeriodKind = "day"
	PeriodMonth  PeriodKind = "month"
	PeriodYear   PeriodKind = "year"
	PeriodCustom PeriodKind = "custom"
)

type Period struct {
	Kind  PeriodKind `json:"kind"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

type Report struct {
	Period       Period          `json:"period"`
	Orders       []Order         `json:"orders"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}
