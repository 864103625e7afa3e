package gateway

import (
	"math"
	"strconv"
)

// ISO 4217 numeric codes for the currencies the providers accept.
var currencyNumeric = map[string]int{
	"RUB": 643,
	"USD": 840,
	"EUR": 978,
	"KZT": 398,
	"BYN": 933,
	"UAH": 980,
	"CNY": 156,
	"GBP": 826,
	"JPY": 392,
}

// Currencies with a minor-unit exponent other than 2.
var currencyExponent = map[string]int{
	"JPY": 0,
}

// NumericCode returns the ISO 4217 numeric code as the providers expect it.
func NumericCode(alpha string) (string, bool) {
	n, ok := currencyNumeric[alpha]
	if !ok {
		return "", false
	}
	return strconv.Itoa(n), true
}

// ToMinorUnits converts a major-unit amount to the smallest currency unit.
func ToMinorUnits(amount float64, alpha string) int64 {
	exp := 2
	if e, ok := currencyExponent[alpha]; ok {
		exp = e
	}
	return int64(math.Round(amount * math.Pow10(exp)))
}

// FromMinorUnits converts a smallest-unit amount back to major units.
func FromMinorUnits(minor int64, alpha string) float64 {
	exp := 2
	if e, ok := currencyExponent[alpha]; ok {
		exp = e
	}
	return float64(minor) / math.Pow10(exp)
}
