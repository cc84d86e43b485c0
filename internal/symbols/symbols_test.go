package symbols

import (
	"log/slog"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFuturesContractSize_KnownRoots(t *testing.T) {
	cases := map[string]float64{
		"./ESU4":  50,
		"./NQU4":  20,
		"./MESU4": 5,
		"./MNQU4": 2,
		"./RTYU4": 50,
		"./M2KU4": 10,
		"./YMU4":  5,
		"./MYMU4": 2,
		"./ZBU4":  1000,
		"./ZNU4":  1000,
		"./ZTU4":  2000,
		"./ZFU4":  1000,
		"./ZCU4":  50,
		"./HEU4":  40000,
		"./LEU4":  40000,
		"./CLU4":  1000,
		"./GCU4":  100,
		"./SIU4":  5000,
		"./6EU4":  125000,
	}
	for symbol, want := range cases {
		if got := FuturesContractSize(discard(), symbol); got != want {
			t.Errorf("FuturesContractSize(%q) = %v, want %v", symbol, got, want)
		}
	}
}

func TestFuturesContractSize_UnknownRootDefaultsToOne(t *testing.T) {
	if got := FuturesContractSize(discard(), "./XYZU4"); got != 1 {
		t.Errorf("expected default contract size 1, got %v", got)
	}
}

func TestIsOption(t *testing.T) {
	if !IsOption("AAPL230721C00250000") {
		t.Error("expected AAPL230721C00250000 to be an option")
	}
	if !IsOption("QQQ240726P00470000") {
		t.Error("expected QQQ240726P00470000 to be an option")
	}
	if IsOption("AAPL") {
		t.Error("AAPL is not an option")
	}
	if IsOption("./ESU4") {
		t.Error("./ESU4 is not an equity option")
	}
}

func TestParseOption(t *testing.T) {
	det, err := ParseOption("AAPL230721C00250000")
	if err != nil {
		t.Fatalf("ParseOption: %v", err)
	}
	if det.Underlying != "AAPL" {
		t.Errorf("underlying = %q, want AAPL", det.Underlying)
	}
	if want := time.Date(2023, 7, 21, 0, 0, 0, 0, time.UTC); !det.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", det.Expiry, want)
	}
	if det.Type != "C" {
		t.Errorf("type = %q, want C", det.Type)
	}
	if det.Strike != 250.0 {
		t.Errorf("strike = %v, want 250.0", det.Strike)
	}
}

func TestParseOption_Invalid(t *testing.T) {
	if _, err := ParseOption("AAPL"); err == nil {
		t.Error("expected error for non-option symbol")
	}
}

func TestUnderlying(t *testing.T) {
	cases := map[string]string{
		"AAPL230721C00250000": "AAPL",
		"QQQ240726P00470000":  "QQQ",
		"AAPL":                "AAPL",
		"./ESU4":              "ES",
		"./M2KU4":             "M2K",
	}
	for symbol, want := range cases {
		if got := Underlying(symbol); got != want {
			t.Errorf("Underlying(%q) = %q, want %q", symbol, got, want)
		}
	}
}

func TestMultiplier(t *testing.T) {
	log := discard()
	if got := Multiplier(log, "AAPL"); got != 1 {
		t.Errorf("equity multiplier = %v, want 1", got)
	}
	if got := Multiplier(log, "AAPL230721C00250000"); got != 100 {
		t.Errorf("option multiplier = %v, want 100", got)
	}
	if got := Multiplier(log, "./ESU4"); got != 50 {
		t.Errorf("futures multiplier = %v, want 50", got)
	}
}
