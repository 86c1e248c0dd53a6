package engine

// Band boundaries for the three-level classification. The bands partition
// [0,100] with no gaps: LOW 0-30, MEDIUM 31-70, HIGH 71-100.
const (
	lowBandMax    = 30
	mediumBandMax = 70
	maxScore      = 100
)

// Classification is the display form of a risk band.
type Classification struct {
	Level RiskLevel `json:"level"`
	Label string    `json:"label"`
	Color string    `json:"color"`
}

// Classify maps a clamped score to its risk band. Pure function; callers
// must pass a score already clamped to [0,100].
func Classify(score int) Classification {
	switch {
	case score <= lowBandMax:
		return Classification{Level: RiskLevelLow, Label: "Riesgo bajo", Color: "green"}
	case score <= mediumBandMax:
		return Classification{Level: RiskLevelMedium, Label: "Riesgo medio", Color: "yellow"}
	default:
		return Classification{Level: RiskLevelHigh, Label: "Riesgo alto", Color: "red"}
	}
}

// ClampScore bounds an unclamped factor sum to the [0,100] score range.
func ClampScore(total int) int {
	if total < 0 {
		return 0
	}
	if total > maxScore {
		return maxScore
	}
	return total
}
