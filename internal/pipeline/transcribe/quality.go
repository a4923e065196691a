package transcribe

import "github.com/mediascribe/pipeline/internal/core/domain"

// Duration thresholds (seconds) for the quality policy. Short media
// gets a higher-quality model; long media trades quality for bounded
// processing time.
const (
	shortMediaSeconds  = 5 * 60
	mediumMediaSeconds = 20 * 60
	longMediaSeconds   = 60 * 60
)

// ModelForDuration picks the initial model size for a piece of media.
func ModelForDuration(seconds float64) domain.ModelSize {
	switch {
	case seconds <= 0:
		// Unknown duration: stay in the middle of the chain.
		return domain.ModelSmall
	case seconds <= shortMediaSeconds:
		return domain.ModelLarge
	case seconds <= mediumMediaSeconds:
		return domain.ModelMedium
	case seconds <= longMediaSeconds:
		return domain.ModelSmall
	default:
		return domain.ModelBase
	}
}
