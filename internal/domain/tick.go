package domain

import "time"

// PriceTick is one update from the streaming price feed.
type PriceTick struct {
	Symbol string
	Price  float64
	Time   time.Time
}
