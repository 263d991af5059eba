package cache

import "time"

// Strategy names a TTL class: a small value type carrying both a name (for
// logging/metrics) and a duration.
type Strategy struct {
	Name string
	TTL  time.Duration
}

// Custom builds a one-off strategy with an explicit TTL.
func Custom(ttl time.Duration) Strategy {
	return Strategy{Name: "custom", TTL: ttl}
}

// Named TTL strategies. RealTime is used for crypto prices and the "latest
// snapshot" cache key; it must stay under 30s.
var (
	RealTime   = Strategy{Name: "realtime", TTL: 10 * time.Second}
	ShortTerm  = Strategy{Name: "short_term", TTL: 5 * time.Minute}
	MediumTerm = Strategy{Name: "medium_term", TTL: time.Hour}
	LongTerm   = Strategy{Name: "long_term", TTL: 3 * time.Hour}
)
