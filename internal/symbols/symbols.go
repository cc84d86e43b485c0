// Package symbols classifies instrument symbols and resolves the
// notional multiplier (contract size) applied to quantity×price.
package symbols

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// OptionMultiplier is the contract size for equity option contracts.
const OptionMultiplier = 100

// occPattern matches OCC-style option symbols, e.g. AAPL230721C00250000.
var occPattern = regexp.MustCompile(`^([A-Z]+)(\d{2})(\d{2})(\d{2})([CP])(\d{8})$`)

// underlyingPattern matches the leading uppercase root of a symbol.
var underlyingPattern = regexp.MustCompile(`^[A-Z]+`)

// futuresContractSizes maps futures root symbols to contract sizes.
var futuresContractSizes = map[string]float64{
	"ES":  50,
	"NQ":  20,
	"MES": 5,
	"MNQ": 2,
	"RTY": 50,
	"M2K": 10,
	"YM":  5,
	"MYM": 2,
	"ZB":  1000,
	"ZN":  1000,
	"ZT":  2000,
	"ZF":  1000,
	"ZC":  50,
	"ZS":  50,
	"ZW":  50,
	"ZL":  50,
	"ZM":  50,
	"ZR":  50,
	"ZK":  50,
	"ZO":  50,
	"ZV":  1000,
	"HE":  40000,
	"LE":  40000,
	"CL":  1000,
	"GC":  100,
	"SI":  5000,
	"6E":  125000,
}

// OptionDetails are the components of an OCC option symbol.
type OptionDetails struct {
	Underlying string
	Expiry     time.Time
	Type       string // "C" or "P"
	Strike     float64
}

// IsOption reports whether symbol is an OCC-style option symbol.
func IsOption(symbol string) bool {
	return occPattern.MatchString(symbol)
}

// IsFutures reports whether symbol is a futures (or futures option)
// symbol. Futures symbols carry a "./" prefix, e.g. ./ESU4.
func IsFutures(symbol string) bool {
	return strings.HasPrefix(symbol, "./")
}

// IsDerivative reports whether symbol needs underlying enrichment.
func IsDerivative(symbol string) bool {
	return IsOption(symbol) || IsFutures(symbol)
}

// ParseOption extracts the option details from an OCC symbol.
func ParseOption(symbol string) (*OptionDetails, error) {
	m := occPattern.FindStringSubmatch(symbol)
	if m == nil {
		return nil, fmt.Errorf("not an option symbol: %q", symbol)
	}

	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	expiry := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	strikeRaw, _ := strconv.ParseFloat(m[6], 64)

	return &OptionDetails{
		Underlying: m[1],
		Expiry:     expiry,
		Type:       m[5],
		Strike:     strikeRaw / 1000,
	}, nil
}

// Underlying returns the root symbol a derivative refers to. For
// non-derivative symbols it returns the symbol itself.
func Underlying(symbol string) string {
	if IsFutures(symbol) {
		return futuresRoot(symbol)
	}
	root := underlyingPattern.FindString(symbol)
	if root == "" {
		return symbol
	}
	return root
}

// futuresRoot strips the "./" prefix, an optional futures-option marker,
// and the month/year coding, leaving the contract root, e.g.
// ./ESU4 -> ES, ./MESU4 -> MES.
func futuresRoot(symbol string) string {
	s := strings.TrimPrefix(symbol, "./")
	// Roots may embed digits (6E, M2K), so trim the trailing
	// month-code letter plus year digits instead of scanning for the
	// first digit.
	for len(s) > 0 && s[len(s)-1] >= '0' && s[len(s)-1] <= '9' {
		s = s[:len(s)-1]
	}
	if len(s) > 1 {
		s = s[:len(s)-1] // month code letter
	}
	return s
}

// FuturesContractSize returns the contract size for a futures symbol.
// Unrecognized roots default to 1 with an error log.
func FuturesContractSize(log *slog.Logger, symbol string) float64 {
	size, ok := futuresContractSizes[futuresRoot(symbol)]
	if !ok {
		log.Error("unknown futures symbol, defaulting contract size to 1", "symbol", symbol)
		return 1
	}
	return size
}

// Multiplier resolves the notional scaling factor for a symbol:
// contract size for futures, 100 for option contracts, 1 otherwise.
func Multiplier(log *slog.Logger, symbol string) float64 {
	if IsFutures(symbol) {
		return FuturesContractSize(log, symbol)
	}
	if IsOption(symbol) {
		return OptionMultiplier
	}
	return 1
}
