package rollout

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// anonymousToken stands in for the user identity when a flag is evaluated
// outside of a user context (startup paths, background jobs).
const anonymousToken = "anonymous"

// ShouldEnable decides whether a flag at the given rollout percentage is
// active for a user. The decision is a pure function of its inputs: the same
// (flagKey, userID) pair lands on the same side of the threshold on every
// call and on every process instance, so a user never flip-flops during a
// partial rollout.
func ShouldEnable(flagKey, userID string, rolloutPercentage float64) bool {
	if rolloutPercentage <= 0 {
		return false
	}
	if rolloutPercentage >= 100 {
		return true
	}
	return Percentile(flagKey, userID) <= rolloutPercentage
}

// Percentile maps (flagKey, userID) to a stable value in [0, 100) with
// two-decimal resolution. Only the first 4 bytes of the digest are used;
// for bucketing users that is plenty, any digest with good bit distribution
// would do.
func Percentile(flagKey, userID string) float64 {
	if userID == "" {
		userID = anonymousToken
	}
	sum := sha256.Sum256([]byte(flagKey + ":" + userID))
	return float64(binary.BigEndian.Uint32(sum[:4])%10000) / 100.0
}

// Impact summarizes a simulated rollout over a synthetic user population.
type Impact struct {
	TargetPercentage float64 `json:"target_percentage"`
	ActualPercentage float64 `json:"actual_percentage"`
	EnabledUsers     int     `json:"enabled_users"`
	TotalUsers       int     `json:"total_users"`
}

// Variance is the absolute gap between requested and simulated coverage.
func (i Impact) Variance() float64 {
	return math.Abs(i.ActualPercentage - i.TargetPercentage)
}

func (i Impact) String() string {
	return fmt.Sprintf("Impact{target=%.1f%%, actual=%.1f%%, enabled=%d/%d, variance=%.1f%%}",
		i.TargetPercentage, i.ActualPercentage, i.EnabledUsers, i.TotalUsers, i.Variance())
}

// CalculateImpact estimates how many users a percentage change would reach by
// evaluating sampleSize synthetic identities. Used for pre-flight blast
// radius checks before touching a live percentage; nothing is persisted.
func CalculateImpact(flagKey string, rolloutPercentage float64, sampleSize int) Impact {
	if sampleSize <= 0 {
		sampleSize = 1
	}

	enabled := 0
	for i := 0; i < sampleSize; i++ {
		if ShouldEnable(flagKey, fmt.Sprintf("sample_user_%d", i), rolloutPercentage) {
			enabled++
		}
	}

	return Impact{
		TargetPercentage: rolloutPercentage,
		ActualPercentage: float64(enabled) * 100.0 / float64(sampleSize),
		EnabledUsers:     enabled,
		TotalUsers:       sampleSize,
	}
}
