package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents maps recognized ISO 4217 codes to their minor-unit digits.
var currencyExponents = map[string]int32{
	"USD": 2, "EUR": 2, "GBP": 2,
	"GHS": 2, "KES": 2, "TZS": 2, "ZMW": 2, "NGN": 2, "MWK": 2,
	"CDF": 2, "ZAR": 2, "SLE": 2, "LRD": 2, "MZN": 2, "ETB": 2,
	"UGX": 0, "RWF": 0, "XAF": 0, "XOF": 0, "GNF": 0, "BIF": 0, "MGA": 0,
}

// CurrencyExponent returns the minor-unit digits of code.
func CurrencyExponent(code string) (int32, bool) {
	exp, ok := currencyExponents[strings.ToUpper(code)]
	return exp, ok
}

// IsCurrency reports whether code is a recognized ISO currency.
func IsCurrency(code string) bool {
	_, ok := CurrencyExponent(code)
	return ok
}

// AmountFromFloat converts f to a decimal amount, rejecting NaN and infinities.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: amount must be finite", ErrInvalidInput)
	}
	return decimal.NewFromFloat(f), nil
}

// ValidateAmount checks amount > 0 and that it fits the currency's precision.
func ValidateAmount(amount decimal.Decimal, currency string) error {
	exp, ok := CurrencyExponent(currency)
	if !ok {
		return fmt.Errorf("%w: unrecognized currency %q", ErrInvalidInput, currency)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if !amount.Equal(amount.Truncate(exp)) {
		return fmt.Errorf("%w: %s allows %d decimal places", ErrInvalidInput, strings.ToUpper(currency), exp)
	}
	return nil
}
