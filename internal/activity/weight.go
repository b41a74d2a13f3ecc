package activity

// WeightOrder ranks entry weights, most severe first. Alert entries carry
// their severity; everything else is "info".
var WeightOrder = map[string]int{
	"critical": 1,
	"moderate": 2,
	"low":      3,
	"info":     4,
}

// WeightSeverity returns the rank of w, treating unknown weights as info.
func WeightSeverity(w string) int {
	if s, ok := WeightOrder[w]; ok {
		return s
	}
	return WeightOrder["info"]
}

// IsAtLeastWeight reports whether w is as severe as min or more.
func IsAtLeastWeight(w, min string) bool {
	return WeightSeverity(w) <= WeightSeverity(min)
}

// weightsAtLeast lists every known weight at least as severe as min.
func weightsAtLeast(min string) []string {
	var out []string
	for w := range WeightOrder {
		if IsAtLeastWeight(w, min) {
			out = append(out, w)
		}
	}
	return out
}
