// Package currency converts between the platform's decimal amounts and the
// gateway's integer minor-unit representation.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// places maps ISO 4217 currency codes to their number of decimal places.
// Codes not listed use the default of 2.
var places = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "UYI": 0,
	"VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// Places returns the decimal precision used for the given currency.
func Places(code string) int32 {
	if p, ok := places[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return p
	}
	return 2
}

// ToMinorUnits converts a decimal amount to the gateway's integer minor-unit
// representation, truncating anything beyond the currency's precision.
func ToMinorUnits(amount decimal.Decimal, code string) int64 {
	return amount.Shift(Places(code)).Truncate(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits, rounded to the currency's
// display precision.
func FromMinorUnits(minor int64, code string) decimal.Decimal {
	p := Places(code)
	return decimal.New(minor, -p).Round(p)
}
