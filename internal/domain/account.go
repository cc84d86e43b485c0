package domain

import "time"

// AccountSnapshot is the brokerage-reported total account value, one
// logical row per broker with the latest value winning.
type AccountSnapshot struct {
	Broker    string
	Value     float64
	UpdatedAt time.Time
}
