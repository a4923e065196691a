package domain

// ModelSize is a whisper model preset, ordered by resource cost.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// DowngradeChain lists model sizes from most to least expensive. On
// out-of-memory the retry loop walks one step down this chain.
var DowngradeChain = []ModelSize{
	ModelLarge,
	ModelMedium,
	ModelSmall,
	ModelBase,
	ModelTiny,
}

// Smaller returns the next cheaper model in the downgrade chain.
// ok is false when m is already the smallest (or unknown).
func (m ModelSize) Smaller() (next ModelSize, ok bool) {
	for i, size := range DowngradeChain {
		if size == m {
			if i == len(DowngradeChain)-1 {
				return "", false
			}
			return DowngradeChain[i+1], true
		}
	}
	return "", false
}

// CheaperThan reports whether m costs less than other.
func (m ModelSize) CheaperThan(other ModelSize) bool {
	rank := func(s ModelSize) int {
		for i, size := range DowngradeChain {
			if size == s {
				return i
			}
		}
		return -1
	}
	return rank(m) > rank(other)
}
