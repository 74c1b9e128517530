package http

import (
	"strings"

	"ledger/internal/core"
)

// sanitizeInput removes control characters (except tab, newline and carriage
// return) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// rowView is one rendered ledger line.
type rowView struct {
	ID        int64
	Amount    string // with currency symbol
	RawAmount string // fixed-point, for the edit input
	Item      string
	Editing   bool
}

// ledgerView is the data behind the ledger partial.
type ledgerView struct {
	Rows     []rowView
	Count    int
	Total    string
	RawTotal string
	Currency string
}

func (v ledgerView) Empty() bool {
	return v.Count == 0
}

func buildLedgerView(currency string, records []core.Record, editing func(int64) bool, total core.Money) ledgerView {
	v := ledgerView{
		Rows:     make([]rowView, 0, len(records)),
		Count:    len(records),
		Total:    core.FormatCurrency(currency, total),
		RawTotal: total.String(),
		Currency: currency,
	}
	for _, r := range records {
		v.Rows = append(v.Rows, rowView{
			ID:        r.ID,
			Amount:    core.FormatCurrency(currency, r.Amount),
			RawAmount: r.Amount.String(),
			Item:      r.Description,
			Editing:   editing(r.ID),
		})
	}
	return v
}
