package invoice

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/lexicon"
)

// quantityCode matches a quantity followed by an uppercase product code
var quantityCode = regexp.MustCompile(`(\d+)\s+([A-Z0-9-]+)`)

// LineItem is one priced row of an invoice table
type LineItem struct {
	Quantity    int             `json:"quantity"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// ParseLineItems returns the table rows found in text, in line order
func ParseLineItems(text string) []LineItem {
	var items []LineItem
	for _, line := range lexicon.Lines(text) {
		if item, ok := ParseLineItem(line); ok {
			items = append(items, item)
		}
	}
	return items
}

// ParseLineItem reads "QTY CODE description £price". Only the first
// quantity/code pair on the line is considered, and the price must follow it.
func ParseLineItem(line string) (LineItem, bool) {
	loc := quantityCode.FindStringSubmatchIndex(line)
	if loc == nil {
		return LineItem{}, false
	}
	qty, err := strconv.Atoi(line[loc[2]:loc[3]])
	if err != nil || qty <= 0 {
		return LineItem{}, false
	}
	code := line[loc[4]:loc[5]]

	rest := strings.TrimSpace(line[loc[1]:])
	price := lexicon.CurrencyAmount.FindStringSubmatchIndex(rest)
	if price == nil {
		return LineItem{}, false
	}
	unit, ok := lexicon.ParseAmount(rest[price[2]:price[3]])
	if !ok {
		return LineItem{}, false
	}

	description := strings.TrimSpace(rest[:price[0]])
	if description == "" {
		description = "Item " + code
	}
	return LineItem{
		Quantity:    qty,
		Code:        code,
		Description: description,
		UnitPrice:   unit,
		Total:       unit.Mul(decimal.NewFromInt(int64(qty))),
	}, true
}
