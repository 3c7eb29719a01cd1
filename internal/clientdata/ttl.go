package clientdata

import "time"

// TTL constants for cached client data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLAnalysis covers a full weight analysis for one portfolio. Prices move,
	// so it is kept short.
	TTLAnalysis = 15 * time.Minute

	// TTLSecurity covers per-symbol price and market cap, used to rebuild
	// market-cap weights when the analysis service is unreachable.
	TTLSecurity = 24 * time.Hour
)
