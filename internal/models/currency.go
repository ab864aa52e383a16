package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"AUD": "$",
	"CAD": "$",
	"NZD": "$",
	"SGD": "$",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"IDR": "Rp",
	"THB": "฿",
}

// currencies without a minor unit
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"IDR": true,
	"VND": true,
}

// MinorUnits returns the number of decimal places used by a currency
func MinorUnits(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// CurrencySymbol returns the display prefix for a currency code
func CurrencySymbol(currency string) string {
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		return sym
	}
	if currency == "" {
		return "$"
	}
	return strings.ToUpper(currency) + " "
}

// FormatAmount prefixes the currency symbol and drops an all-zero minor part
func FormatAmount(amount decimal.Decimal, currency string) string {
	places := MinorUnits(currency)
	if amount.Equal(amount.Truncate(0)) {
		places = 0
	}
	return CurrencySymbol(currency) + amount.StringFixed(places)
}

// ToMinorUnits converts an amount to the integer unit gateways charge in
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(MinorUnits(currency)).Round(0).IntPart()
}
