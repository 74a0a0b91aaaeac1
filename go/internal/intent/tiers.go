package intent

import "fmt"

// Tier identifies an entry-fee bracket. Each tier has its own shared lobby.
type Tier uint8

type TierInfo struct {
	Tier Tier
	Name string
	// Fee is the entry fee in base units.
	Fee uint64
}

var tierTable = []TierInfo{
	{Tier: 1, Name: "Casual", Fee: 10_000_000},
	{Tier: 2, Name: "Rookie", Fee: 100_000_000},
	{Tier: 3, Name: "Pro", Fee: 1_000_000_000},
	{Tier: 4, Name: "Elite", Fee: 10_000_000_000},
	{Tier: 5, Name: "Whale", Fee: 100_000_000_000},
}

// Tiers lists every tier in ascending fee order.
func Tiers() []TierInfo {
	out := make([]TierInfo, len(tierTable))
	copy(out, tierTable)
	return out
}

// LookupTier returns the table entry for t.
func LookupTier(t Tier) (TierInfo, error) {
	for _, info := range tierTable {
		if info.Tier == t {
			return info, nil
		}
	}
	return TierInfo{}, fmt.Errorf("unknown tier %d", t)
}

func (t Tier) String() string {
	if info, err := LookupTier(t); err == nil {
		return info.Name
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}
