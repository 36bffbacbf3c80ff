// Package fx converts monetary amounts between currencies through a shared
// rate table expressed relative to one base currency.
package fx

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRateUnavailable indicates that the rate table has no entry for one of
// the requested currencies. Financial figures are never silently computed
// 1:1; callers surface this as a tool failure.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Convert converts amount from one currency to another using rates keyed by
// currency code relative to base. The base currency's own rate is implicitly
// 1 when absent from the table. Currency codes are compared
// case-insensitively.
func Convert(amount float64, from, to, base string, rates map[string]float64) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return amount, nil
	}
	src, ok := rateFor(from, base, rates)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateUnavailable, from)
	}
	dst, ok := rateFor(to, base, rates)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateUnavailable, to)
	}
	return amount / src * dst, nil
}

func rateFor(code, base string, rates map[string]float64) (float64, bool) {
	if r, ok := rates[code]; ok && r > 0 {
		return r, true
	}
	if strings.EqualFold(code, base) {
		return 1, true
	}
	return 0, false
}
