package metered

// Coster computes the credit cost of one metered operation from its
// volume (keywords checked, URLs analyzed, words generated, ...).
type Coster interface {
	Cost(units int64) int64
}

// Flat charges a constant cost regardless of volume.
type Flat int64

func (f Flat) Cost(int64) int64 { return int64(f) }

// PerUnit charges a constant cost per unit of volume.
type PerUnit int64

func (p PerUnit) Cost(units int64) int64 {
	if units <= 0 {
		return 0
	}
	return int64(p) * units
}

// VolumeTier is one bracket of a tiered price. UpTo is the inclusive
// upper bound of the bracket; 0 means unbounded and must be last.
type VolumeTier struct {
	UpTo    int64
	PerUnit int64
}

// Tiered charges the whole volume at the rate of the bracket it lands
// in. Brackets must be ordered by ascending UpTo.
type Tiered []VolumeTier

func (t Tiered) Cost(units int64) int64 {
	if units <= 0 {
		return 0
	}
	for _, tier := range t {
		if tier.UpTo == 0 || units <= tier.UpTo {
			return units * tier.PerUnit
		}
	}
	// volume beyond every bounded bracket: charge the last rate
	if len(t) == 0 {
		return 0
	}
	return units * t[len(t)-1].PerUnit
}
