package domain

// higherTimeframe maps each base interval to the companion interval the
// analyzer consumes alongside it.
var higherTimeframe = map[string]string{
	"1m":  "5m",
	"5m":  "15m",
	"15m": "1h",
	"1h":  "4h",
	"4h":  "1d",
	"1d":  "1w",
	"1w":  "1M",
}

// HigherTimeframe returns the higher-timeframe interval for a base
// interval, if one is defined.
func HigherTimeframe(interval string) (string, bool) {
	htf, ok := higherTimeframe[interval]
	return htf, ok
}
