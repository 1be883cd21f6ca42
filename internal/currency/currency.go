// Package currency converts submitted expense amounts into a company's
// reporting currency.
package currency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places converted amounts are rounded to.
const Places = 2

// Supported lists the currencies the submission form offers.
var Supported = []string{"INR", "USD", "EUR", "GBP", "JPY"}

// RateTable maps a currency code to how many units of the pivot currency one
// unit of it is worth.
type RateTable map[string]decimal.Decimal

type Conversion struct {
	Amount        decimal.Decimal `json:"amount"`
	Rate          decimal.Decimal `json:"rate"`
	LowConfidence bool            `json:"low_confidence"`
}

type Converter struct {
	rates RateTable
}

func NewConverter(rates RateTable) *Converter {
	normalized := make(RateTable, len(rates))
	for code, rate := range rates {
		normalized[Normalize(code)] = rate
	}
	return &Converter{rates: normalized}
}

// ParseRates builds a rate table from config values such as {"usd": "85"}.
func ParseRates(raw map[string]string) (RateTable, error) {
	table := make(RateTable, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", code)
		}
		table[Normalize(code)] = rate
	}
	return table, nil
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Known reports whether the converter has a rate for code.
func (c *Converter) Known(code string) bool {
	_, ok := c.rates[Normalize(code)]
	return ok
}

// Codes returns the currencies with a configured rate, sorted.
func (c *Converter) Codes() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Convert turns amount in from into to. Unknown codes convert at rate 1 and
// are flagged as low confidence instead of failing.
func (c *Converter) Convert(amount decimal.Decimal, from, to string) Conversion {
	from, to = Normalize(from), Normalize(to)
	if from == to {
		return Conversion{Amount: amount.Round(Places), Rate: decimal.NewFromInt(1)}
	}

	fromRate, okFrom := c.rates[from]
	toRate, okTo := c.rates[to]
	if !okFrom || !okTo {
		return Conversion{Amount: amount.Round(Places), Rate: decimal.NewFromInt(1), LowConfidence: true}
	}

	return Conversion{
		Amount: amount.Mul(fromRate).Div(toRate).Round(Places),
		Rate:   fromRate.Div(toRate),
	}
}
