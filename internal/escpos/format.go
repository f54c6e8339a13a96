package escpos

import (
	"fmt"
	"time"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/shopspring/decimal"
)

const CurrencySuffix = "MAD"

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// FormatCurrency renders an amount with two decimals and the currency suffix.
func FormatCurrency(amount decimal.Decimal) string {
	return amount.StringFixed(2) + " " + CurrencySuffix
}

// FormatDate renders day/month/year hour:minute in the time's own location.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}

func FormatDay(t time.Time) string {
	return t.Format("02/01/2006")
}

// FormatMonth renders "mars 2025".
func FormatMonth(t time.Time) string {
	return fmt.Sprintf("%s %d", frenchMonths[t.Month()-1], t.Year())
}

// PeriodLabel describes a report period.
func PeriodLabel(p model.Period) string {
	switch p.Kind {
	case model.PeriodDay:
		return "Jour: " + FormatDay(p.Start)
	case model.PeriodMonth:
		return "Mois: " + FormatMonth(p.Start)
	case model.PeriodYear:
		return fmt.Sprintf("Année: %d", p.Start.Year())
	case model.PeriodCustom:
		return "Période: " + FormatDay(p.Start) + " - " + FormatDay(p.End)
	default:
		return "Période inconnue"
	}
}
