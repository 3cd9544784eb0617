package market

// MajorPairs get the tighter slippage assumption; everything else is
// treated as an alt with a wider fill deviation.
var MajorPairs = map[string]bool{
	"BTCUSDT": true,
	"ETHUSDT": true,
}

// DefaultPairs is the fallback trading universe when no pair list is
// configured and pair discovery is unavailable.
var DefaultPairs = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"DOGEUSDT", "ADAUSDT", "AVAXUSDT", "DOTUSDT", "LINKUSDT",
}

func IsMajor(pair string) bool {
	return MajorPairs[pair]
}
