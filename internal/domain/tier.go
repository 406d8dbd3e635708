package domain

import "time"

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Limits bound what a user of a tier may publish.
type Limits struct {
	MaxProjects   int
	MaxFileBytes  int64
	MaxExpiry     time.Duration
	AllowPassword bool
}

const mib = 1 << 20

var tierLimits = map[Tier]Limits{
	TierFree: {
		MaxProjects:   3,
		MaxFileBytes:  50 * mib,
		MaxExpiry:     7 * 24 * time.Hour,
		AllowPassword: false,
	},
	TierPro: {
		MaxProjects:   100,
		MaxFileBytes:  500 * mib,
		MaxExpiry:     90 * 24 * time.Hour,
		AllowPassword: true,
	},
}

// LimitsFor falls back to the free tier for unknown values.
func LimitsFor(t Tier) Limits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierFree]
}

func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}

// MaxFileBytes is the largest upload any tier accepts.
func MaxFileBytes() int64 {
	var n int64
	for _, l := range tierLimits {
		n = max(n, l.MaxFileBytes)
	}
	return n
}
