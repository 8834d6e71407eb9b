package domain

// currencyExponents lists the minor-unit exponent for currencies that do not
// use the default of 2. Values follow ISO 4217.
var currencyExponents = map[string]int32{
	"BHD": 3,
	"CLP": 0,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"VND": 0,
}

// CurrencyExponent returns the number of decimal places for a currency code.
func CurrencyExponent(code string) int32 {
	if exp, ok := currencyExponents[code]; ok {
		return exp
	}
	return 2
}
